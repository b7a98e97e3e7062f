package cli

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	MakeChannel(ctx context.Context, name string) error
	Direct(ctx context.Context, peer string) error
	Channels(ctx context.Context) error
	Members(ctx context.Context, channel string) error
	Invite(ctx context.Context, channel, user string) error
	Kick(ctx context.Context, channel, user string) error
	Send(ctx context.Context, channel, text string) error
	Read(ctx context.Context, channel string, limit int) error
	Reset(ctx context.Context) error
}

const (
	helpLoggedOut = "Available commands: register, login, reset, exit"
	helpLoggedIn  = "Available commands: mkchan <name>, dm <user>, channels, members <ch>, " +
		"invite <ch> <user>, kick <ch> <user>, send <ch> [text], read <ch> [-n count], reset, logout, exit"
)

// parseLimit extracts an optional "-n <count>" from args. The count must be
// a positive integer.
func parseLimit(args []string) (rest []string, limit int, ok bool) {
	for i := 0; i < len(args); i++ {
		if args[i] != "-n" {
			rest = append(rest, args[i])
			continue
		}
		if i+1 == len(args) {
			return nil, 0, false
		}
		n, err := strconv.Atoi(args[i+1])
		if err != nil || n <= 0 {
			return nil, 0, false
		}
		limit = n
		i++
	}
	return rest, limit, true
}

// runREPL reads commands line by line and dispatches them to a until EOF or
// "exit". Handlers report their own errors. The reader is shared with the
// handlers' prompts.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("gophchat %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		need := func(n int, usage string) bool {
			if len(args) < n {
				printlnFn("Usage:", usage)
				return false
			}
			return true
		}

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "reset":
			_ = a.Reset(ctx)

		case "mkchan":
			if need(1, "mkchan <name>") {
				_ = a.MakeChannel(ctx, strings.Join(args, " "))
			}

		case "dm":
			if need(1, "dm <user>") {
				_ = a.Direct(ctx, args[0])
			}

		case "channels", "ls":
			_ = a.Channels(ctx)

		case "members":
			if need(1, "members <channel>") {
				_ = a.Members(ctx, args[0])
			}

		case "invite":
			if need(2, "invite <channel> <user>") {
				_ = a.Invite(ctx, args[0], args[1])
			}

		case "kick":
			if need(2, "kick <channel> <user>") {
				_ = a.Kick(ctx, args[0], args[1])
			}

		case "send":
			if need(1, "send <channel> [text]") {
				_ = a.Send(ctx, args[0], strings.Join(args[1:], " "))
			}

		case "read":
			rest, limit, ok := parseLimit(args)
			if !ok || len(rest) < 1 {
				printlnFn("Usage:", "read <channel> [-n count]")
				break
			}
			_ = a.Read(ctx, rest[0], limit)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
