// Command bietl syncs BI datasets from PostHog, RD Station CRM and Trello
// into a relational database, once or on a schedule.
package main

import (
	"os"

	// Every backend registers itself; DB_DRIVER picks one at run time.
	_ "bietl/internal/storage/all"
)

func main() {
	os.Exit(Execute())
}
