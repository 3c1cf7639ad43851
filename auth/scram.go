package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/elbaro/pyros/buffer"
	"github.com/elbaro/pyros/pgerr"
	"github.com/elbaro/pyros/protocol"
	"golang.org/x/crypto/pbkdf2"
)

const scramSHA256Mechanism = "SCRAM-SHA-256"

// runSCRAMSHA256 drives one RFC 5802 SCRAM-SHA-256 exchange to completion.
// It assumes the caller has already consumed the AuthSASL message that
// announced this mechanism; it reads the subsequent AuthSASLContinue and
// AuthSASLFinal messages itself. No channel binding is supported (gs2-header
// "n,,"), matching a plain TCP or unverified-TLS client connection.
func runSCRAMSHA256(reader *buffer.Reader, writer *buffer.Writer, password string) error {
	clientNonce, err := randomNonce(18)
	if err != nil {
		return pgerr.NewConnectionFailedError(err)
	}

	clientFirstBare := "n=,r=" + clientNonce
	clientFirst := "n,," + clientFirstBare

	writer.Start(protocol.PasswordMessage)
	writer.AddCString(scramSHA256Mechanism)
	writer.AddInt32(int32(len(clientFirst)))
	writer.AddBytes([]byte(clientFirst))
	if err := writer.End(); err != nil {
		return pgerr.NewConnectionFailedError(err)
	}

	typ, _, err := reader.ReadTypedMsg()
	if err != nil {
		return pgerr.NewConnectionFailedError(err)
	}
	if typ != protocol.Authentication {
		return pgerr.NewConnectionFailedError(fmt.Errorf("scram: expected Authentication message, got %s", typ))
	}
	code, err := reader.GetInt32()
	if err != nil {
		return pgerr.NewConnectionFailedError(err)
	}
	if protocol.AuthType(code) != protocol.AuthSASLContinue {
		return pgerr.NewConnectionFailedError(fmt.Errorf("scram: expected AuthSASLContinue, got %d", code))
	}

	// The SASL data is the remainder of the message, with no terminator.
	serverFirstBytes, err := reader.GetBytes(reader.Len())
	if err != nil {
		return pgerr.NewConnectionFailedError(err)
	}
	serverFirst := string(serverFirstBytes)

	serverNonce, salt, iterations, err := parseServerFirst(serverFirst)
	if err != nil {
		return pgerr.NewConnectionFailedError(err)
	}
	if !strings.HasPrefix(serverNonce, clientNonce) {
		return pgerr.NewConnectionFailedError(fmt.Errorf("scram: server nonce does not extend client nonce"))
	}

	saltedPassword := pbkdf2.Key([]byte(password), salt, iterations, sha256.Size, sha256.New)
	clientKey := hmacSum(saltedPassword, "Client Key")
	storedKey := sha256.Sum256(clientKey)

	clientFinalWithoutProof := "c=biws,r=" + serverNonce
	authMessage := clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	clientSignature := hmacSum(storedKey[:], authMessage)
	clientProof := xorBytes(clientKey, clientSignature)

	clientFinal := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)

	writer.Start(protocol.PasswordMessage)
	writer.AddBytes([]byte(clientFinal))
	if err := writer.End(); err != nil {
		return pgerr.NewConnectionFailedError(err)
	}

	typ, _, err = reader.ReadTypedMsg()
	if err != nil {
		return pgerr.NewConnectionFailedError(err)
	}
	if typ != protocol.Authentication {
		return pgerr.NewConnectionFailedError(fmt.Errorf("scram: expected Authentication message, got %s", typ))
	}
	code, err = reader.GetInt32()
	if err != nil {
		return pgerr.NewConnectionFailedError(err)
	}
	if protocol.AuthType(code) != protocol.AuthSASLFinal {
		return pgerr.NewConnectionFailedError(fmt.Errorf("scram: expected AuthSASLFinal, got %d", code))
	}

	serverFinalBytes, err := reader.GetBytes(reader.Len())
	if err != nil {
		return pgerr.NewConnectionFailedError(err)
	}
	serverFinal := string(serverFinalBytes)

	serverKey := hmacSum(saltedPassword, "Server Key")
	expectedSignature := hmacSum(serverKey, authMessage)
	if err := verifyServerFinal(serverFinal, expectedSignature); err != nil {
		return pgerr.NewConnectionFailedError(err)
	}

	return nil
}

func parseServerFirst(msg string) (nonce string, salt []byte, iterations int, err error) {
	for _, field := range strings.Split(msg, ",") {
		if len(field) < 2 || field[1] != '=' {
			continue
		}
		switch field[0] {
		case 'r':
			nonce = field[2:]
		case 's':
			salt, err = base64.StdEncoding.DecodeString(field[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("scram: bad salt: %w", err)
			}
		case 'i':
			iterations, err = strconv.Atoi(field[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("scram: bad iteration count: %w", err)
			}
		}
	}
	if nonce == "" || salt == nil || iterations == 0 {
		return "", nil, 0, fmt.Errorf("scram: malformed server-first-message %q", msg)
	}
	return nonce, salt, iterations, nil
}

func verifyServerFinal(msg string, expected []byte) error {
	if !strings.HasPrefix(msg, "v=") {
		return fmt.Errorf("scram: malformed server-final-message %q", msg)
	}
	got, err := base64.StdEncoding.DecodeString(msg[2:])
	if err != nil {
		return fmt.Errorf("scram: bad server signature: %w", err)
	}
	if !hmac.Equal(got, expected) {
		return fmt.Errorf("scram: server signature mismatch")
	}
	return nil
}

func hmacSum(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func randomNonce(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(raw), nil
}
