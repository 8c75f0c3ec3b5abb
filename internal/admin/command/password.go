package command

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// HashPasswordCommand prints a bcrypt hash for a password read from the terminal.
func HashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "hash-password",
		Usage: "Read a password without echo and print its bcrypt hash",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "cost",
				Value: bcrypt.DefaultCost,
				Usage: "bcrypt cost factor",
			},
		},
		Action: hashPassword,
	}
}

func hashPassword(c *cli.Context) error {
	vault, err := auth.NewVault(c.Int("cost"))
	if err != nil {
		return err
	}

	pw, err := promptPassword(c.App.ErrWriter, "Enter password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	confirm, err := promptPassword(c.App.ErrWriter, "Repeat password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(pw, confirm) {
		return errors.New("passwords do not match")
	}
	if len([]rune(string(pw))) < services.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", services.MinPasswordLength)
	}

	hash, err := vault.Hash(string(pw))
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, hash)
	return nil
}

func promptPassword(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}
