package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersion1 = 1

// Encode serializes a Session to the compact binary blob stored in
// Redis. The SessionID is the Redis key and is not part of the blob.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersion1)

	if len(s.UserID) > 255 {
		return nil, errors.New("userID too long")
	}
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	if len(s.Email) > 255 {
		return nil, errors.New("email too long")
	}
	buf.WriteByte(byte(len(s.Email)))
	buf.WriteString(s.Email)

	if len(s.Roles) > 255 {
		return nil, errors.New("too many roles")
	}
	buf.WriteByte(byte(len(s.Roles)))
	for _, role := range s.Roles {
		if len(role) > 255 {
			return nil, errors.New("role too long")
		}
		buf.WriteByte(byte(len(role)))
		buf.WriteString(role)
	}

	var flags byte
	if s.Verified {
		flags |= 1 << 0
	}
	if s.TwoFactor {
		flags |= 1 << 1
	}
	buf.WriteByte(flags)

	buf.Write(s.RefreshHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. Callers fill in SessionID
// from the key they fetched.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersion1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	s.UserID = string(userID)

	emailLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return nil, err
	}
	s.Email = string(email)

	roleCount, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if roleCount > 0 {
		s.Roles = make([]string, 0, roleCount)
		for i := 0; i < int(roleCount); i++ {
			roleLen, err := reader.ReadByte()
			if err != nil {
				return nil, err
			}
			role := make([]byte, roleLen)
			if _, err := io.ReadFull(reader, role); err != nil {
				return nil, err
			}
			s.Roles = append(s.Roles, string(role))
		}
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	s.Verified = flags&(1<<0) != 0
	s.TwoFactor = flags&(1<<1) != 0

	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}

	return s, nil
}
