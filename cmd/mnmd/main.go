// Command mnmd is the reconciliation engine's CLI/daemon entrypoint,
// grounded on the teacher's cmd/bd: a cobra root command with persistent
// flags layered over viper-backed config (internal/config), dispatching to
// subcommands that wire internal/storage/mysql, internal/kbclient,
// internal/jobqueue, internal/worker, and internal/wdrc together.
package main

func main() {
	Execute()
}
