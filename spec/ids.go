// Copyright 2024 Nordeck IT + Consulting GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package spec

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	userSigil            = '@'
	roomSigil            = '!'
	localDomainSeparator = ':'
)

// A ServerName is the name a matrix homeserver is identified by.
// It is a DNS name or IP address optionally followed by a port.
type ServerName string

// Valid reports whether the server name is a DNS name, an IPv4 address or a
// bracketed IPv6 address, each optionally followed by a numeric port.
func (s ServerName) Valid() bool {
	host := string(s)
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.HasSuffix(host, "]") {
		if _, err := strconv.ParseUint(host[i+1:], 10, 16); err == nil {
			host = host[:i]
		}
	}
	if host == "" {
		return false
	}
	if strings.HasPrefix(host, "[") {
		return strings.HasSuffix(host, "]") && net.ParseIP(host[1:len(host)-1]) != nil
	}
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}

// A UserID identifies a matrix user, e.g. "@alice:example.com".
type UserID struct {
	raw    string
	local  string
	domain ServerName
}

// NewUserID parses a user ID. Localparts are checked against the historical
// character set since widgets commonly run in rooms with legacy members.
func NewUserID(id string) (*UserID, error) {
	local, domain, err := splitID(id, userSigil)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", id, err)
	}
	if len(id) > 255 {
		return nil, fmt.Errorf("invalid user id %q: longer than 255 characters", id)
	}
	for _, r := range local {
		if r < 0x21 || r == localDomainSeparator || r > 0x7E {
			return nil, fmt.Errorf("invalid user id %q: invalid character %q in localpart", id, r)
		}
	}
	return &UserID{raw: id, local: local, domain: domain}, nil
}

func (u UserID) String() string     { return u.raw }
func (u UserID) Local() string      { return u.local }
func (u UserID) Domain() ServerName { return u.domain }

func (u UserID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.raw)
}

func (u *UserID) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewUserID(raw)
	if err != nil {
		return err
	}
	*u = *parsed
	return nil
}

// A RoomID identifies a matrix room, e.g. "!abc:example.com". There are no
// character restrictions on the opaque part. Rooms of version 12 and later
// have ids without a domain.
type RoomID struct {
	raw      string
	opaqueID string
	domain   ServerName
}

func NewRoomID(id string) (*RoomID, error) {
	if len(id) > 1 && id[0] == roomSigil && !strings.ContainsRune(id, localDomainSeparator) {
		return &RoomID{raw: id, opaqueID: id[1:]}, nil
	}
	opaque, domain, err := splitID(id, roomSigil)
	if err != nil {
		return nil, fmt.Errorf("invalid room id %q: %w", id, err)
	}
	return &RoomID{raw: id, opaqueID: opaque, domain: domain}, nil
}

func (r RoomID) String() string     { return r.raw }
func (r RoomID) OpaqueID() string   { return r.opaqueID }
func (r RoomID) Domain() ServerName { return r.domain }

func (r RoomID) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.raw)
}

func (r *RoomID) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewRoomID(raw)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// splitID splits SIGIL LOCALPART ":" DOMAIN on the first separator, since the
// domain may itself contain a port.
func splitID(id string, sigil byte) (string, ServerName, error) {
	if len(id) < 4 {
		return "", "", fmt.Errorf("length %d is too short", len(id))
	}
	if id[0] != sigil {
		return "", "", fmt.Errorf("first character is not '%c'", sigil)
	}
	local, domain, found := strings.Cut(id[1:], string(localDomainSeparator))
	if !found {
		return "", "", fmt.Errorf("missing '%c'", localDomainSeparator)
	}
	if local == "" {
		return "", "", fmt.Errorf("empty localpart")
	}
	if !ServerName(domain).Valid() {
		return "", "", fmt.Errorf("domain %q is invalid", domain)
	}
	return local, ServerName(domain), nil
}
