// Command chatctl prints rooms, room history and users from a roomchat
// Badger data directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/store"
)

const usage = `usage: chatctl [-db path] [-limit n] <command>

commands:
  rooms              list rooms that hold messages
  messages <room>    print the latest messages of a room
  users              list registered users
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, color.Red.Sprintf("chatctl: %v", err))
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("chatctl", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	dbPath := flags.String("db", "./data", "path to the badger directory")
	limit := flags.Int("limit", 50, "number of messages to print")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if flags.NArg() == 0 {
		return errUsage
	}

	st, err := store.OpenBadger(*dbPath, true, zerolog.Nop())
	if err != nil {
		return err
	}
	defer st.Close()

	return execute(context.Background(), st, flags.Args(), *limit, out)
}

func execute(ctx context.Context, st store.Store, args []string, limit int, out io.Writer) error {
	switch args[0] {
	case "rooms":
		rooms, err := st.Rooms(ctx)
		if err != nil {
			return err
		}
		renderRooms(ctx, st, rooms, out)
		return nil

	case "messages":
		if len(args) < 2 {
			return errUsage
		}
		messages, err := st.QueryRoom(ctx, args[1], limit)
		if err != nil {
			return err
		}
		renderMessages(messages, out)
		return nil

	case "users":
		users, err := st.Users(ctx)
		if err != nil {
			return err
		}
		renderUsers(users, out)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderRooms(ctx context.Context, st store.Store, rooms []string, out io.Writer) {
	table := newTable(out, "Room", "Latest")
	for _, room := range rooms {
		latest := "-"
		if tail, err := st.QueryRoom(ctx, room, 1); err == nil && len(tail) == 1 {
			latest = tail[0].Timestamp.Format("2006-01-02 15:04:05")
		}
		table.Append([]string{room, latest})
	}
	table.Render()
	fmt.Fprintln(out, color.Green.Sprintf("%d room(s)", len(rooms)))
}

func renderMessages(messages []chat.Message, out io.Writer) {
	table := newTable(out, "Time", "Sender", "Text")
	for _, m := range messages {
		table.Append([]string{m.Timestamp.Format("15:04:05"), m.SenderName, m.Text})
	}
	table.Render()
	fmt.Fprintln(out, color.Green.Sprintf("%d message(s)", len(messages)))
}

func renderUsers(users []chat.User, out io.Writer) {
	table := newTable(out, "ID", "Username", "Created", "Last seen")
	for _, u := range users {
		table.Append([]string{
			shortID(u.ID),
			u.Username,
			u.CreatedAt.Format("2006-01-02"),
			u.LastSeen.Format("2006-01-02 15:04:05"),
		})
	}
	table.Render()
	fmt.Fprintln(out, color.Green.Sprintf("%d user(s)", len(users)))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
