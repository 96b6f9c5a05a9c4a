package translate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/minios-linux/tsfill/langmeta"
)

// DefaultArgosBin is the Argos Translate command line executable.
const DefaultArgosBin = "argos-translate"

// Argos runs the offline Argos Translate CLI once per text.
type Argos struct {
	cfg Config
	bin string
	log logrus.FieldLogger
}

// NewArgos returns an Argos runner for cfg.
func NewArgos(cfg Config) *Argos {
	cfg.Backend = BackendArgos
	bin := cfg.ArgosBin
	if bin == "" {
		bin = DefaultArgosBin
	}
	return &Argos{cfg: cfg, bin: bin, log: cfg.logger()}
}

// argosCode maps a language code to Argos Translate's.
func argosCode(lang string) string {
	if langmeta.IsTraditionalChinese(lang) {
		return "zt"
	}
	return langmeta.Base(lang)
}

// Translate implements Translator.
func (a *Argos) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, a.cfg.effectiveTimeout())
	defer cancel()

	from, to := argosCode(sourceLang), argosCode(targetLang)
	// "--" keeps a text starting with "-" from being read as an option.
	cmd := exec.CommandContext(runCtx, a.bin, "--from", from, "--to", to, "--", text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.log.Debugf("exec %s --from %s --to %s (%d bytes)", a.bin, from, to, len(text))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if runCtx.Err() != nil {
			return "", failed(BackendArgos, fmt.Errorf("timed out after %v", a.cfg.effectiveTimeout()))
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return "", unavailable(BackendArgos, fmt.Errorf("%s not found: %w", a.bin, err))
		}
		msg := strings.TrimSpace(stderr.String())
		if isMissingArgosPackage(msg) {
			return "", unavailable(BackendArgos, fmt.Errorf("%s -> %s: %s", from, to, lastLine(msg)))
		}
		return "", failed(BackendArgos, fmt.Errorf("%v: %s", err, truncate(lastLine(msg), 200)))
	}

	out := strings.TrimRight(stdout.String(), "\r\n")
	if strings.TrimSpace(out) == "" {
		return "", failed(BackendArgos, errors.New("empty output"))
	}
	return keepOuterSpace(text, out), nil
}

func isMissingArgosPackage(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "no translation") ||
		strings.Contains(s, "not installed") ||
		strings.Contains(s, "none of the installed")
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
