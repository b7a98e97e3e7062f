package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/storage"
)

const timeLayout = "2006-01-02 15:04:05"

func (a *App) Register(ctx context.Context) error {
	pw, err := a.newPassword()
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(pw)

	if err := a.session.Register(ctx, pw); err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Registered and logged in")
	return nil
}

func (a *App) Login(ctx context.Context) error {
	pw, err := GetPassword("Password", a.out)
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(pw)

	if err := a.session.Unlock(ctx, pw); err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Logged in")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.session.Lock()
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

// Reset replaces the user's keys after an explicit confirmation.
func (a *App) Reset(ctx context.Context) error {
	fmt.Fprintln(a.out, "Resetting keys makes every existing channel unreadable until you are invited again.")
	answer, err := GetSimpleText(a.reader, "Type RESET to continue", a.out)
	if err != nil {
		return a.report(err)
	}
	if answer != "RESET" {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}

	pw, err := a.newPassword()
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(pw)

	if err := a.session.ResetKeys(ctx, pw); err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Keys reset, ask channel members to invite you again")
	return nil
}

func (a *App) MakeChannel(ctx context.Context, name string) error {
	desc, err := GetSimpleText(a.reader, "Description (optional)", a.out)
	if err != nil {
		return a.report(err)
	}
	c, err := a.session.CreateChannel(ctx, name, desc)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "Channel %s created: %s\n", c.Name, c.ID)
	return nil
}

func (a *App) Direct(ctx context.Context, peer string) error {
	c, err := a.session.CreateDirect(ctx, peer)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "Direct channel %s created: %s\n", c.Name, c.ID)
	return nil
}

func (a *App) Channels(ctx context.Context) error {
	chans, err := a.session.Channels(ctx)
	if err != nil {
		return a.report(err)
	}
	if len(chans) == 0 {
		fmt.Fprintln(a.out, "No channels")
		return nil
	}
	for _, c := range chans {
		kind := "group"
		if c.IsDirect {
			kind = "direct"
		}
		fmt.Fprintf(a.out, "%s  %-20s %-6s %s\n", c.ID, c.Name, kind, c.Description)
	}
	return nil
}

func (a *App) Members(ctx context.Context, channel string) error {
	members, err := a.session.Members(ctx, a.resolve(ctx, channel))
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, strings.Join(members, ", "))
	return nil
}

func (a *App) Invite(ctx context.Context, channel, user string) error {
	if err := a.session.AddMember(ctx, a.resolve(ctx, channel), user); err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "%s invited\n", user)
	return nil
}

func (a *App) Kick(ctx context.Context, channel, user string) error {
	if err := a.session.RemoveMember(ctx, a.resolve(ctx, channel), user); err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "%s removed, channel key rotated\n", user)
	return nil
}

func (a *App) Send(ctx context.Context, channel, text string) error {
	if text == "" {
		var err error
		text, err = GetMultiline(a.reader, "Message", a.out)
		if err != nil {
			return a.report(err)
		}
	}
	if text == "" {
		return a.report(fmt.Errorf("empty message: %w", common.ErrInvalidInput))
	}
	if _, err := a.session.SendMessage(ctx, a.resolve(ctx, channel), text); err != nil {
		return a.report(err)
	}
	return nil
}

// Read prints the channel history, or only its last limit messages when
// limit is positive.
func (a *App) Read(ctx context.Context, channel string, limit int) error {
	var (
		msgs []models.DecodedMessage
		err  error
	)
	if limit > 0 {
		msgs, err = a.session.ReceiveMessagesPage(ctx, a.resolve(ctx, channel), storage.Cursor{}, limit)
	} else {
		msgs, err = a.session.ReceiveMessages(ctx, a.resolve(ctx, channel))
	}
	if err != nil {
		return a.report(err)
	}
	failed := 0
	for _, m := range msgs {
		body := m.Plaintext
		if m.Failed() {
			body = "<unable to decrypt>"
			failed++
		}
		fmt.Fprintf(a.out, "[%s] %s: %s\n", m.CreatedAt.Local().Format(timeLayout), m.UserID, body)
	}
	if failed > 0 {
		a.logger.Debug(ctx, "Some messages could not be decrypted", "count", failed)
	}
	return nil
}
