package journal

import (
	"fmt"
	"log"
	"os"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	action := args[0]

	// Open without applying migrations so status, baseline and force see
	// the journal exactly as it is on disk.
	j, err := OpenRaw(dbPath)
	if err != nil {
		log.Fatalf("Failed to open journal %s: %v", dbPath, err)
	}
	defer j.Close()

	switch action {
	case "up":
		handleMigrateUp(j)

	case "down":
		handleMigrateDown(j)

	case "status":
		handleMigrateStatus(j)

	case "version":
		if len(args) < 2 {
			log.Fatal("Usage: greenwave migrate version <version_number>")
		}
		handleMigrateVersion(j, args[1])

	case "force":
		if len(args) < 2 {
			log.Fatal("Usage: greenwave migrate force <version_number>")
		}
		handleMigrateForce(j, args[1])

	case "baseline":
		if len(args) < 2 {
			log.Fatal("Usage: greenwave migrate baseline <version_number>")
		}
		handleMigrateBaseline(j, args[1])

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

// handleMigrateUp applies all pending migrations
func handleMigrateUp(j *Journal) {
	log.Printf("Running migrations...")
	if err := j.MigrateUp(); err != nil {
		log.Fatalf("Migration up failed: %v", err)
	}
	log.Println("✓ All migrations applied successfully")

	// Show current version
	version, dirty, _ := j.MigrateVersion()
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

// handleMigrateDown rolls back one migration
func handleMigrateDown(j *Journal) {
	log.Printf("Rolling back one migration...")
	if err := j.MigrateDown(); err != nil {
		log.Fatalf("Migration down failed: %v", err)
	}
	log.Println("✓ Migration rolled back successfully")

	// Show current version
	version, dirty, _ := j.MigrateVersion()
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

// handleMigrateStatus displays the current migration status
func handleMigrateStatus(j *Journal) {
	version, dirty, err := j.MigrateVersion()
	if err != nil {
		log.Fatalf("Failed to get migration status: %v", err)
	}

	status, err := j.GetMigrationStatus()
	if err != nil {
		log.Fatalf("Failed to get migration status: %v", err)
	}

	latest, err := GetLatestMigrationVersion()
	if err != nil {
		log.Fatalf("Failed to get latest migration version: %v", err)
	}

	fmt.Println("=== Migration Status ===")
	fmt.Printf("Current version: %d\n", version)
	fmt.Printf("Latest available: %d\n", latest)
	fmt.Printf("Dirty: %v\n", dirty)
	fmt.Printf("Schema migrations table exists: %v\n", status["schema_migrations_exists"])

	if dirty {
		fmt.Println("\n⚠️  WARNING: Journal is in a dirty state!")
		fmt.Println("A migration failed mid-execution. You may need to:")
		fmt.Println("  1. Inspect the journal manually")
		fmt.Println("  2. Fix any issues")
		fmt.Println("  3. Run: greenwave migrate force <version>")
	} else if version < latest {
		fmt.Printf("\n%d migration(s) pending. Run 'greenwave migrate up' to apply them.\n", latest-version)
	}
}

// handleMigrateVersion migrates to a specific version
func handleMigrateVersion(j *Journal, versionStr string) {
	var targetVersion uint
	if _, err := fmt.Sscanf(versionStr, "%d", &targetVersion); err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}

	log.Printf("Migrating to version %d...", targetVersion)
	if err := j.MigrateTo(targetVersion); err != nil {
		log.Fatalf("Migration to version %d failed: %v", targetVersion, err)
	}
	log.Printf("✓ Migrated to version %d successfully", targetVersion)
}

// handleMigrateForce forces the migration version (recovery only)
func handleMigrateForce(j *Journal, versionStr string) {
	var forceVersion int
	if _, err := fmt.Sscanf(versionStr, "%d", &forceVersion); err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}

	fmt.Printf("⚠️  WARNING: Forcing migration version to %d\n", forceVersion)
	fmt.Println("This should only be used to recover from a dirty migration state.")
	fmt.Print("Continue? [y/N]: ")

	var response string
	fmt.Scanln(&response)
	if response != "y" && response != "Y" {
		log.Println("Aborted")
		os.Exit(0)
	}

	if err := j.MigrateForce(forceVersion); err != nil {
		log.Fatalf("Force migration failed: %v", err)
	}
	log.Printf("✓ Migration version forced to %d", forceVersion)
}

// handleMigrateBaseline sets the baseline version without running migrations
func handleMigrateBaseline(j *Journal, versionStr string) {
	var baselineVersion uint
	if _, err := fmt.Sscanf(versionStr, "%d", &baselineVersion); err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}

	log.Printf("Baselining journal at version %d...", baselineVersion)
	if err := j.BaselineAtVersion(baselineVersion); err != nil {
		log.Fatalf("Baseline failed: %v", err)
	}
	log.Printf("✓ Journal baselined at version %d", baselineVersion)
}

// PrintMigrateHelp displays the help message for the migrate command
func PrintMigrateHelp() {
	fmt.Println("Journal Migration Commands")
	fmt.Println()
	fmt.Println("Usage: greenwave migrate <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              Apply all pending migrations")
	fmt.Println("  down            Rollback one migration")
	fmt.Println("  status          Show current migration status and version")
	fmt.Println("  version <N>     Migrate to specific version N")
	fmt.Println("  force <N>       Force migration version to N (recovery only)")
	fmt.Println("  baseline <N>    Set migration version to N without running migrations")
	fmt.Println("  help            Show this help message")
	fmt.Println()
	fmt.Println("The daemon applies pending migrations automatically on startup; these")
	fmt.Println("commands exist for inspecting a journal and for recovery.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  greenwave migrate up")
	fmt.Println("  greenwave migrate down")
	fmt.Println("  greenwave migrate status")
	fmt.Println("  greenwave migrate version 2")
	fmt.Println("  greenwave migrate force 1")
	fmt.Println("  greenwave migrate baseline 1")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -db <path>    Path to journal file (default: greenwave.db)")
}
