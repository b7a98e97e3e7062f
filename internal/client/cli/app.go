// Package cli is the interactive terminal front end of the chat client.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/models"
	"github.com/dmitrijs2005/gophchat/internal/storage"
)

// chatSession is the part of chat.Session the CLI drives.
type chatSession interface {
	UserID() string
	Unlocked() bool
	Register(ctx context.Context, password []byte) error
	Unlock(ctx context.Context, password []byte) error
	Lock()
	ResetKeys(ctx context.Context, newPassword []byte) error
	CreateChannel(ctx context.Context, name, description string) (*models.Channel, error)
	CreateDirect(ctx context.Context, peerID string) (*models.Channel, error)
	Channels(ctx context.Context) ([]*models.Channel, error)
	Members(ctx context.Context, channelID string) ([]string, error)
	AddMember(ctx context.Context, channelID, memberID string) error
	RemoveMember(ctx context.Context, channelID, memberID string) error
	SendMessage(ctx context.Context, channelID, text string) (*models.EncryptedMessage, error)
	ReceiveMessages(ctx context.Context, channelID string) ([]models.DecodedMessage, error)
	ReceiveMessagesPage(ctx context.Context, channelID string, before storage.Cursor, limit int) ([]models.DecodedMessage, error)
}

type App struct {
	session chatSession
	reader  *bufio.Reader
	out     io.Writer
	logger  logging.Logger
}

func NewApp(session chatSession, in io.Reader, out io.Writer, logger logging.Logger) *App {
	return &App{
		session: session,
		reader:  bufio.NewReader(in),
		out:     out,
		logger:  logger.With("module", "cli"),
	}
}

// Run greets the user, tries to log in and then serves commands until exit.
// The session is locked on return.
func (a *App) Run(ctx context.Context) {
	defer a.session.Lock()

	fmt.Fprintf(a.out, "Welcome to gophchat, %s (type 'help' for commands)\n", a.session.UserID())
	runREPL(ctx, a, a.status, a.reader)
}

func (a *App) isLoggedIn() bool { return a.session.Unlocked() }

func (a *App) status() string {
	if a.isLoggedIn() {
		return "(" + a.session.UserID() + ")"
	}
	return "(" + a.session.UserID() + " locked)"
}

// report prints err for the user and passes it through.
func (a *App) report(err error) error {
	switch {
	case err == nil:
	case errors.Is(err, common.ErrLocked):
		fmt.Fprintln(a.out, "Please log in first")
	case errors.Is(err, common.ErrAuthenticationFailed):
		fmt.Fprintln(a.out, "Wrong password")
	case errors.Is(err, common.ErrAccessDenied):
		fmt.Fprintln(a.out, "Access denied:", err)
	case errors.Is(err, common.ErrUnavailable):
		fmt.Fprintln(a.out, "Server unavailable, try again later")
	default:
		fmt.Fprintln(a.out, "Error:", err)
	}
	return err
}

// resolve accepts a channel id or the name of a channel the user is in.
func (a *App) resolve(ctx context.Context, ref string) string {
	chans, err := a.session.Channels(ctx)
	if err != nil {
		return ref
	}
	for _, c := range chans {
		if c.ID == ref {
			return ref
		}
	}
	for _, c := range chans {
		if c.Name == ref {
			return c.ID
		}
	}
	return ref
}

func (a *App) newPassword() ([]byte, error) {
	pw, err := GetPassword("New password", a.out)
	if err != nil {
		return nil, err
	}
	again, err := GetPassword("Repeat password", a.out)
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(again)
	if string(pw) != string(again) {
		common.WipeByteArray(pw)
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}
