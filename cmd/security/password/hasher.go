package password

// Hasher is the credential surface used by account services.
// Unlike Config.Verify it never reports an error: a malformed or
// unsupported credential simply does not verify.
type Hasher struct {
	cfg Config
}

// NewHasher returns a Hasher bound to cfg.
func NewHasher(cfg Config) *Hasher {
	return &Hasher{cfg: cfg}
}

// Validate applies the password policy without hashing.
func (h *Hasher) Validate(plain string) error {
	return h.cfg.Validate(plain)
}

// Hash validates plain against the policy and returns its encoded credential.
func (h *Hasher) Hash(plain string) (string, error) {
	return h.cfg.Hash(plain)
}

// Verify reports whether plain matches credential.
func (h *Hasher) Verify(plain, credential string) bool {
	if credential == "" {
		return false
	}
	ok, err := h.cfg.Verify(credential, plain)
	return err == nil && ok
}

// NeedsRehash reports whether a verified credential should be re-encoded
// with the current parameters. Unusable credentials never need it.
func (h *Hasher) NeedsRehash(credential string) bool {
	if credential == "" {
		return false
	}
	return h.cfg.NeedsRehash(credential)
}
