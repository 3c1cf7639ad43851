// Package auth implements the client side of the three PostgreSQL
// authentication exchanges this library supports: cleartext password, MD5,
// and SASL/SCRAM-SHA-256. The package reads Authentication messages from
// the server and writes back whatever response the announced method
// demands, looping until the server reports AuthOK.
package auth

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/elbaro/pyros/buffer"
	"github.com/elbaro/pyros/pgerr"
	"github.com/elbaro/pyros/protocol"
)

// Authenticate drives the authentication sub-protocol to completion,
// reading successive Authentication messages from reader and writing
// password responses to writer until AuthOK is received. It returns once
// the server confirms authentication, or the first error encountered.
func Authenticate(ctx context.Context, reader *buffer.Reader, writer *buffer.Writer, user, password string) error {
	for {
		typ, _, err := reader.ReadTypedMsg()
		if err != nil {
			return pgerr.NewConnectionFailedError(err)
		}
		if typ != protocol.Authentication {
			return pgerr.NewConnectionFailedError(fmt.Errorf("auth: expected Authentication message, got %s", typ))
		}

		code, err := reader.GetInt32()
		if err != nil {
			return pgerr.NewConnectionFailedError(err)
		}

		switch protocol.AuthType(code) {
		case protocol.AuthOK:
			return nil

		case protocol.AuthCleartextPassword:
			if err := sendPasswordMessage(writer, password); err != nil {
				return err
			}

		case protocol.AuthMD5Password:
			salt, err := reader.GetBytes(4)
			if err != nil {
				return pgerr.NewConnectionFailedError(err)
			}
			if err := sendPasswordMessage(writer, md5Password(user, password, salt)); err != nil {
				return err
			}

		case protocol.AuthSASL:
			if err := requireSCRAMSHA256(reader); err != nil {
				return err
			}
			if err := runSCRAMSHA256(reader, writer, password); err != nil {
				return err
			}

		default:
			return pgerr.NewConnectionFailedError(fmt.Errorf("auth: unsupported authentication method %d", code))
		}
	}
}

// requireSCRAMSHA256 walks the NUL-terminated mechanism list carried by an
// AuthSASL message and verifies SCRAM-SHA-256 is offered.
func requireSCRAMSHA256(reader *buffer.Reader) error {
	for reader.Len() > 0 {
		mechanism, err := reader.GetString()
		if err != nil {
			return pgerr.NewConnectionFailedError(err)
		}
		if mechanism == "" {
			break
		}
		if mechanism == scramSHA256Mechanism {
			return nil
		}
	}
	return pgerr.NewConnectionFailedError(fmt.Errorf("auth: server offers no supported SASL mechanism"))
}

func sendPasswordMessage(writer *buffer.Writer, password string) error {
	writer.Start(protocol.PasswordMessage)
	writer.AddCString(password)
	if err := writer.End(); err != nil {
		return pgerr.NewConnectionFailedError(err)
	}
	return nil
}

// md5Password implements Postgres's MD5 challenge: "md5" +
// md5(md5(password+user) + salt), hex encoded.
func md5Password(user, password string, salt []byte) string {
	inner := md5.Sum([]byte(password + user))
	innerHex := hex.EncodeToString(inner[:])

	outer := md5.New()
	outer.Write([]byte(innerHex))
	outer.Write(salt)

	return "md5" + hex.EncodeToString(outer.Sum(nil))
}
