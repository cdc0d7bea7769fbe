package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"

	"sniprag/internal/util"
)

// runFunc executes name with args, feeding stdin, and returns stdout.
type runFunc func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)

// CLIRecognizer shells out to the tesseract executable and reads its TSV
// output.
type CLIRecognizer struct {
	bin  string
	opts Options
	run  runFunc
}

// NewCLIRecognizer resolves the tesseract binary. A missing binary is
// reported as ErrOCRUnavailable.
func NewCLIRecognizer(opts Options) (*CLIRecognizer, error) {
	name := opts.Path
	if name == "" {
		name = "tesseract"
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: tesseract executable %q: %v", util.ErrOCRUnavailable, name, err)
	}
	return &CLIRecognizer{bin: bin, opts: opts, run: execRun}, nil
}

func (c *CLIRecognizer) Name() string { return "tesseract-cli" }

func (c *CLIRecognizer) Recognize(ctx context.Context, png []byte, dpi int) ([]Word, error) {
	args := []string{"stdin", "stdout", "-l", strings.Join(c.opts.languages(), "+")}
	if dpi > 0 {
		args = append(args, "--dpi", strconv.Itoa(dpi))
	}
	if c.opts.TessdataDir != "" {
		args = append(args, "--tessdata-dir", c.opts.TessdataDir)
	}
	args = append(args, "tsv")
	out, err := c.run(ctx, c.bin, args, png)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w", err)
	}
	return ParseTSV(out)
}

func execRun(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// tesseract TSV columns
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	numCols
)

const levelWord = 5

// ParseTSV reads word rows (level 5) from tesseract TSV output. Rows with
// empty text are skipped.
func ParseTSV(data []byte) ([]Word, error) {
	var words []Word
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "level\t") {
			continue
		}
		fields := strings.SplitN(line, "\t", numCols)
		if len(fields) < numCols-1 {
			return nil, fmt.Errorf("tsv line %d: expected %d columns, got %d", lineNo, numCols, len(fields))
		}
		level, err := strconv.Atoi(fields[colLevel])
		if err != nil {
			return nil, fmt.Errorf("tsv line %d: level: %w", lineNo, err)
		}
		if level != levelWord || len(fields) < numCols {
			continue
		}
		text := strings.TrimSpace(fields[colText])
		if text == "" {
			continue
		}
		nums := make([]int, 4)
		for i, col := range []int{colLeft, colTop, colWidth, colHeight} {
			n, err := strconv.Atoi(fields[col])
			if err != nil {
				return nil, fmt.Errorf("tsv line %d: column %d: %w", lineNo, col, err)
			}
			nums[i] = n
		}
		conf, err := strconv.ParseFloat(fields[colConf], 64)
		if err != nil {
			return nil, fmt.Errorf("tsv line %d: conf: %w", lineNo, err)
		}
		if conf < 0 {
			conf = 0
		}
		words = append(words, Word{
			Text:       text,
			Box:        image.Rect(nums[0], nums[1], nums[0]+nums[2], nums[1]+nums[3]),
			Confidence: conf / 100,
			Line:       strings.Join(fields[colPage:colWord], "."),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tsv: %w", err)
	}
	return words, nil
}
