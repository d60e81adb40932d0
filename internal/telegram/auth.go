package telegram

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"golang.org/x/term"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// TerminalAuth implements gotd's auth.UserAuthenticator by prompting on a
// terminal. Secrets are read without echo when In is a terminal.
type TerminalAuth struct {
	// PhoneNumber skips the phone prompt when set.
	PhoneNumber string

	In  *os.File
	Out io.Writer

	reader *bufio.Reader
}

func NewTerminalAuth(phone string) *TerminalAuth {
	return &TerminalAuth{PhoneNumber: phone, In: os.Stdin, Out: os.Stderr}
}

func (a *TerminalAuth) readLine(ctx context.Context, prompt string, secret bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(a.Out, prompt)
	fd := int(a.In.Fd())
	if secret && term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(a.Out)
		if err != nil {
			return "", errors.Wrap(err, "read password")
		}
		return strings.TrimSpace(string(b)), nil
	}
	if a.reader == nil {
		a.reader = bufio.NewReader(a.In)
	}
	line, err := a.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", errors.Wrap(err, "read input")
	}
	return strings.TrimSpace(line), nil
}

func (a *TerminalAuth) Phone(ctx context.Context) (string, error) {
	if a.PhoneNumber != "" {
		return a.PhoneNumber, nil
	}
	return a.readLine(ctx, "Phone number: ", false)
}

func (a *TerminalAuth) Code(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	return a.readLine(ctx, "Login code: ", true)
}

func (a *TerminalAuth) Password(ctx context.Context) (string, error) {
	return a.readLine(ctx, "2FA password: ", true)
}

func (a *TerminalAuth) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return &auth.SignUpRequired{TermsOfService: tos}
}

func (a *TerminalAuth) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign up not supported")
}
