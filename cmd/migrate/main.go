package main

import (
	"log"
	"os"

	"deep-research-agent/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect
	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	// 3. Migrate
	log.Println("Running AutoMigrate for research_sessions...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("Error: Migration failed:", err)
	}

	log.Println("Migration completed.")
}
