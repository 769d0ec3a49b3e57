package extract

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

const pdftotextTimeout = 30 * time.Second

var errNoPdftotext = errors.New("pdftotext not installed")

// pdftotext runs poppler's pdftotext on data. The file goes through a
// temporary path because older poppler builds cannot read stdin.
func pdftotext(data []byte) (string, error) {
	bin, err := exec.LookPath("pdftotext")
	if err != nil {
		return "", errNoPdftotext
	}

	tmp, err := os.CreateTemp("", "kbagent-*.pdf")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pdftotextTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, bin, "-enc", "UTF-8", tmp.Name(), "-").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
