package stt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
)

// execRecognizer hands the buffered utterance to an external command at
// finalize time. The command receives a WAV file and prints a JSON object
// with the transcription on stdout. Partials are not supported; the
// external process would be far too slow to run per block.
type execRecognizer struct {
	cmd        []string
	modelPath  string
	language   string
	sampleRate int

	mu  sync.Mutex
	buf []int16
}

type execResult struct {
	Text string `json:"text"`
}

func newExecRecognizer(command, modelPath, language string, sampleRate int) (*execRecognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execRecognizer{
		cmd:        args,
		modelPath:  modelPath,
		language:   language,
		sampleRate: sampleRate,
	}, nil
}

func (r *execRecognizer) Feed(samples []int16) (*Event, error) {
	r.mu.Lock()
	r.buf = append(r.buf, samples...)
	r.mu.Unlock()
	return nil, nil
}

func (r *execRecognizer) Finalize() (*Event, error) {
	r.mu.Lock()
	pcm := r.buf
	r.buf = nil
	r.mu.Unlock()

	if len(pcm) == 0 {
		return nil, nil
	}

	file, err := os.CreateTemp(os.TempDir(), "sttd_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, pcm, r.sampleRate); err != nil {
		return nil, err
	}

	cmdArgs := append([]string{}, r.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", file.Name())
	if r.modelPath != "" {
		cmdArgs = append(cmdArgs, "--model", r.modelPath)
	}
	if r.language != "" {
		cmdArgs = append(cmdArgs, "--language", r.language)
	}

	command := exec.Command(r.cmd[0], cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode stt response: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, nil
	}
	return &Event{Text: text, Final: true}, nil
}

func (r *execRecognizer) Close() error {
	r.mu.Lock()
	r.buf = nil
	r.mu.Unlock()
	return nil
}

func writePCMToWav(file *os.File, pcm []int16, sampleRate int) error {
	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate}}
	samples := make([]int, len(pcm))
	for i, s := range pcm {
		samples[i] = int(s)
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
