// Command sharecodec converts between quiz JSON and share tokens.
//
//	sharecodec encode -in quiz.json -base http://localhost:5173/
//	sharecodec decode -token <token>
//	sharecodec decode -url 'http://localhost:5173/?share=<token>'
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"lalaquiz-backend/internal/models"
	"lalaquiz-backend/internal/sharing"
)

func main() {
	log.SetFlags(0)
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: sharecodec encode|decode [flags]")
	}

	switch args[0] {
	case "encode":
		return runEncode(args[1:], stdin, stdout)
	case "decode":
		return runDecode(args[1:], stdin, stdout)
	}
	return fmt.Errorf("unknown command %q: use encode or decode", args[0])
}

func runEncode(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	var (
		inFile = fs.String("in", "", "Quiz JSON file (default: stdin)")
		base   = fs.String("base", "", "Print a share URL on this base instead of the bare token")
		maxLen = fs.Int("max-length", 10000000, "Refuse URLs longer than this (0 disables)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := readInput(*inFile, stdin)
	if err != nil {
		return err
	}

	var quiz models.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return fmt.Errorf("invalid quiz JSON: %w", err)
	}

	token, err := sharing.Encode(&quiz)
	if err != nil {
		return err
	}
	if *base == "" {
		fmt.Fprintln(stdout, token)
		return nil
	}

	shareURL, err := sharing.BuildURL(*base, token, *maxLen)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, shareURL)
	return nil
}

func runDecode(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	var (
		token    = fs.String("token", "", "Share token (default: stdin)")
		shareURL = fs.String("url", "", "Share URL carrying the token")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *shareURL != "":
		t, ok := sharing.TokenFromURL(*shareURL)
		if !ok {
			return fmt.Errorf("no %s parameter in %s", sharing.ShareParam, *shareURL)
		}
		*token = t
	case *token == "":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		*token = strings.TrimSpace(string(data))
	}

	quiz, err := sharing.Decode(*token)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(quiz, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(out))
	return nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
