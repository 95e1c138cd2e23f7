// Package sign implements SSH-key commit signing (§4.7): the signature
// header is stripped from a commit's pre-image before the OID is computed
// and reinserted afterward, so the signature covers the canonical
// unsigned form of the object.
package sign

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/revise/pkg/object"
)

const commitSignaturePrefix = "sshsig-v1"

// CommitSigner signs a commit's pre-image bytes (the marshaled object with
// any gpgsig header already removed) and returns the value to store back
// in the gpgsig header.
type CommitSigner func(payload []byte) (string, error)

// NewSSHSigner loads an SSH private key (an explicit path, or the first
// default key found under ~/.ssh) and returns a CommitSigner that produces
// an "sshsig-v1:<format>:<pubkey-b64>:<sig-b64>" value, along with the
// resolved key path for diagnostics.
func NewSSHSigner(keyPath string) (CommitSigner, string, error) {
	resolvedPath, err := resolveSigningKeyPath(keyPath)
	if err != nil {
		return nil, "", err
	}

	raw, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, "", fmt.Errorf("sign: read signing key %q: %w", resolvedPath, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, "", fmt.Errorf("sign: parse signing key %q: %w", resolvedPath, err)
	}

	pub := signer.PublicKey()
	pubB64 := base64.StdEncoding.EncodeToString(pub.Marshal())

	commitSigner := func(payload []byte) (string, error) {
		sig, err := signer.Sign(rand.Reader, payload)
		if err != nil {
			return "", err
		}
		sigB64 := base64.StdEncoding.EncodeToString(sig.Blob)
		return fmt.Sprintf("%s:%s:%s:%s", commitSignaturePrefix, sig.Format, pubB64, sigB64), nil
	}
	return commitSigner, resolvedPath, nil
}

// SignCommit computes c's pre-image with any existing gpgsig header
// removed, signs it, and returns a copy of c with GPGSig set to the
// resulting signature. The caller must recompute the object's OID from
// the returned commit (§4.7: the signature covers the canonical unsigned
// form, so the OID is derived after this call, not before).
func SignCommit(c object.Commit, signer CommitSigner) (object.Commit, error) {
	unsigned := c
	unsigned.GPGSig = ""
	payload := object.MarshalCommit(&unsigned)

	sig, err := signer(payload)
	if err != nil {
		return object.Commit{}, fmt.Errorf("sign: %w", err)
	}

	signed := c
	signed.GPGSig = sig
	return signed, nil
}

func resolveSigningKeyPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		return expandUserPath(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("sign: resolve home dir: %w", err)
	}
	candidates := []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
	for _, candidate := range candidates {
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("sign: no default SSH private key found in ~/.ssh (id_ed25519, id_ecdsa, id_rsa)")
}

func expandUserPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("sign: resolve home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
