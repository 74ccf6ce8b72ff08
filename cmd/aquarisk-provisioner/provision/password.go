package provision

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// PasswordLength is the default length for generated passwords
	PasswordLength = 24
	// Charset for password generation; shell-safe so the connection string
	// can be pasted into config.yaml unquoted
	passwordCharset = "abcdefghijklmnopqrstuvwxyz" +
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
		"0123456789"

	// ANSI color codes for terminal output
	ColorReset        = "\033[0m"
	ColorBrightCyan   = "\033[96m"
	ColorBrightYellow = "\033[93m"
	ColorBold         = "\033[1m"
)

// GeneratePassword generates a cryptographically secure random password
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		length = PasswordLength
	}

	password := make([]byte, length)
	charsetLen := big.NewInt(int64(len(passwordCharset)))

	for i := range password {
		num, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		password[i] = passwordCharset[num.Int64()]
	}

	return string(password), nil
}

// DisplayPasswordWarning prints a prominent warning with the generated password
func DisplayPasswordWarning(password string, savedToConfig bool) {
	fmt.Println()
	fmt.Printf("%s%s🔐 Generated Password%s\n", ColorBold, ColorBrightYellow, ColorReset)
	fmt.Printf("%s====================================================%s\n", ColorBrightYellow, ColorReset)
	fmt.Printf("%s  ⚠️  SAVE THIS PASSWORD - IT WON'T BE SHOWN AGAIN  %s\n", ColorBrightYellow, ColorReset)
	fmt.Printf("%s====================================================%s\n", ColorBrightYellow, ColorReset)
	fmt.Println()
	fmt.Printf("  %sPassword: %s%s%s\n", ColorBold, ColorBrightCyan, password, ColorReset)
	fmt.Println()
	if savedToConfig {
		fmt.Println("This password has been saved to your config.db")
		fmt.Println("and will be used by aquarisk automatically.")
	} else {
		fmt.Println("Copy the connection string printed below into the")
		fmt.Println("database section of your config.yaml.")
	}
	fmt.Println()
}
