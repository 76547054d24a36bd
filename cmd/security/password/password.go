package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithm     = "argon2id"
	argon2Version = argon2.Version // 0x13
)

var b64 = base64.RawStdEncoding

// encoded is the parsed form of a stored credential:
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64>
type encoded struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func (e encoded) String() string {
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm,
		argon2Version,
		e.params.MemoryKiB,
		e.params.Iterations,
		e.params.Parallelism,
		b64.EncodeToString(e.salt),
		b64.EncodeToString(e.key),
	)
}

// Hash validates password against the policy and returns its encoded credential.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	e := encoded{params: c.Params, salt: salt}
	e.key = derive(password, salt, c.Params, c.Params.KeyLength)
	return e.String(), nil
}

// Verify checks whether password matches the encoded credential.
// Returns (false, ErrInvalidHash) for malformed or unsupported input.
func (c Config) Verify(credential, password string) (bool, error) {
	e, err := parse(credential)
	if err != nil {
		return false, err
	}

	// Stored strings are untrusted: refuse costs far beyond what this
	// process would use itself.
	if !c.acceptable(e.params) {
		return false, ErrInvalidHash
	}

	got := derive(password, e.salt, e.params, e.params.KeyLength)
	return subtle.ConstantTimeCompare(got, e.key) == 1, nil
}

// NeedsRehash reports whether credential was produced with parameters
// other than the current ones.
func (c Config) NeedsRehash(credential string) bool {
	e, err := parse(credential)
	if err != nil {
		return true
	}
	p := e.params
	return p.MemoryKiB != c.Params.MemoryKiB ||
		p.Iterations != c.Params.Iterations ||
		p.Parallelism != c.Params.Parallelism ||
		p.KeyLength != c.Params.KeyLength
}

func derive(password string, salt []byte, p Argon2idParams, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, keyLen)
}

func (c Config) acceptable(got Argon2idParams) bool {
	lim := c.Params
	switch {
	case got.MemoryKiB > lim.MemoryKiB*2:
		return false
	case got.Iterations > lim.Iterations*2:
		return false
	case uint32(got.Parallelism) > uint32(lim.Parallelism)*2:
		return false
	case got.SaltLength < 8 || got.SaltLength > 64:
		return false
	case got.KeyLength < 16 || got.KeyLength > 128:
		return false
	}
	return true
}

func parse(s string) (encoded, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithm {
		return encoded{}, ErrInvalidHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2Version) {
		return encoded{}, ErrInvalidHash
	}

	var p Argon2idParams
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return encoded{}, ErrInvalidHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return encoded{}, ErrInvalidHash
		}
		switch k {
		case "m":
			p.MemoryKiB = uint32(n)
		case "t":
			p.Iterations = uint32(n)
		case "p":
			if n > 255 {
				return encoded{}, ErrInvalidHash
			}
			p.Parallelism = uint8(n)
		default:
			return encoded{}, ErrInvalidHash
		}
	}
	if p.MemoryKiB == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return encoded{}, ErrInvalidHash
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return encoded{}, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return encoded{}, ErrInvalidHash
	}
	if len(salt) > 1024 || len(key) > 1024 {
		return encoded{}, ErrInvalidHash
	}

	p.SaltLength = uint32(len(salt)) // #nosec G115 -- bounded above.
	p.KeyLength = uint32(len(key))   // #nosec G115 -- bounded above.
	return encoded{params: p, salt: salt, key: key}, nil
}
