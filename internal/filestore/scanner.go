package filestore

import (
	"bytes"
	"context"
	"io"
)

// eicar is the industry standard anti-virus test string.
const eicar = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// Verdict is the outcome of scanning an upload.
type Verdict struct {
	Clean  bool
	Threat string
}

// Scanner inspects upload content before it is published.
type Scanner interface {
	Scan(ctx context.Context, name string, r io.Reader) (Verdict, error)
}

// Signature is a named byte pattern that marks content as a threat.
type Signature struct {
	Name    string
	Pattern []byte
}

// SignatureScanner flags content containing any known byte signature.
type SignatureScanner struct {
	sigs   []Signature
	maxLen int
}

// NewSignatureScanner returns a scanner for the EICAR test string plus extra.
func NewSignatureScanner(extra ...Signature) *SignatureScanner {
	s := &SignatureScanner{}
	for _, sig := range append([]Signature{{Name: "EICAR-Test-File", Pattern: []byte(eicar)}}, extra...) {
		if len(sig.Pattern) == 0 {
			continue
		}
		s.sigs = append(s.sigs, sig)
		if len(sig.Pattern) > s.maxLen {
			s.maxLen = len(sig.Pattern)
		}
	}
	return s
}

// Scan streams r once, keeping enough overlap between reads that a
// signature spanning two buffers is still found.
func (s *SignatureScanner) Scan(ctx context.Context, _ string, r io.Reader) (Verdict, error) {
	const window = 64 * 1024

	buf := make([]byte, 0, window+s.maxLen)
	chunk := make([]byte, window)
	for {
		if err := ctx.Err(); err != nil {
			return Verdict{}, err
		}

		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for _, sig := range s.sigs {
				if bytes.Contains(buf, sig.Pattern) {
					return Verdict{Threat: sig.Name}, nil
				}
			}
			if keep := s.maxLen - 1; keep > 0 && len(buf) > keep {
				buf = append(buf[:0], buf[len(buf)-keep:]...)
			}
		}
		if err == io.EOF {
			return Verdict{Clean: true}, nil
		}
		if err != nil {
			return Verdict{}, err
		}
	}
}
