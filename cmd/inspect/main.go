// Inspect dumps stored messages as a table, for poking at a live store.
// Opens the database read-only so it can run next to the server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"chat-relay/domain"
)

func main() {
	dbPath := flag.String("db", "./data", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg: or pending:)")
	flag.Parse()

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "From", "To", "Created", "Delivered", "Seen", "Flags", "Body"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(*prefix)); it.ValidForPrefix([]byte(*prefix)); it.Next() {
			item := it.Item()
			if err := item.Value(func(value []byte) error {
				table.Append(toRow(string(item.Key()), value))
				rows++
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}

	color.Green.Printf("%d entries under %q\n\n", rows, *prefix)
	table.Render()
}

func toRow(key string, value []byte) []string {
	var msg domain.Message
	if len(value) == 0 || json.Unmarshal(value, &msg) != nil {
		// Index entries have no value; show the raw key.
		return []string{key, "", "", "", "", "", "INDEX", ""}
	}

	var flags []string
	if msg.Edited {
		flags = append(flags, "edited")
	}
	if msg.Deleted {
		flags = append(flags, "deleted")
	}
	seen := ""
	if msg.SeenAt != nil {
		seen = fmt.Sprintf("%s @ %s",
			strings.Join(msg.SeenBy, ","), msg.SeenAt.Format("15:04:05"))
	}

	return []string{
		lo.Substring(msg.ID.String(), 0, 8),
		msg.SenderID,
		msg.ReceiverID,
		msg.CreatedAt.Format("01-02 15:04:05"),
		strings.Join(msg.DeliveredTo, ","),
		seen,
		strings.Join(flags, ","),
		lo.Ellipsis(msg.Body, 40),
	}
}
