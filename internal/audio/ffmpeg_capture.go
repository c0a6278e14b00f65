package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"dialoguerec/internal/domain"
	"dialoguerec/internal/ports"
)

// FFMPEGCapture records the microphone as a webm/opus stream using ffmpeg.
// One process reads the device as raw PCM and a second one encodes the PCM
// the session lets through, so a paused session keeps draining the device and
// nothing said while paused reaches the recording.
type FFMPEGCapture struct {
	command     string
	startupWait time.Duration
	stopWait    time.Duration
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command, startupWait: 250 * time.Millisecond, stopWait: 1200 * time.Millisecond}
}

func (c *FFMPEGCapture) Open(ctx context.Context, cfg ports.AudioConfig, sink ports.ChunkSink) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = time.Second
	}

	capture, err := startProcess(ctx, c.command, captureArgs(cfg), false)
	if err != nil {
		return nil, &domain.DeviceError{Code: domain.ErrorCodeDeviceUnavailable, Err: fmt.Errorf("failed to start ffmpeg: %w", err)}
	}
	encoder, err := startProcess(ctx, c.command, encoderArgs(cfg), true)
	if err != nil {
		capture.kill()
		return nil, &domain.DeviceError{Code: domain.ErrorCodeDeviceUnavailable, Err: fmt.Errorf("failed to start encoder: %w", err)}
	}

	session := &ffmpegSession{
		capture:   capture,
		encoder:   encoder,
		frameSize: 2 * cfg.Channels,
		sink:      sink,
		interval:  cfg.ChunkInterval,
		stopWait:  c.stopWait,
		state:     ports.DeviceStateRecording,
		reads:     make(chan []byte, 64),
		done:      make(chan struct{}),
	}
	go session.pumpLoop()
	go session.readLoop()

	select {
	case err := <-capture.exited:
		encoder.kill()
		session.discard()
		return nil, classifyStartupFailure(err, stringsTrimSpaceSafe(capture.stderr.String()))
	case err := <-encoder.exited:
		// A capture failure closes the encoder input, so check it first.
		select {
		case captureErr := <-capture.exited:
			session.discard()
			return nil, classifyStartupFailure(captureErr, stringsTrimSpaceSafe(capture.stderr.String()))
		case <-time.After(50 * time.Millisecond):
		}
		capture.kill()
		session.discard()
		cause := errors.New("encoder exited before capture started")
		if err != nil {
			cause = fmt.Errorf("encoder exited before capture started: %w", err)
		}
		if detail := stringsTrimSpaceSafe(encoder.stderr.String()); detail != "" {
			cause = fmt.Errorf("%w: %s", cause, detail)
		}
		return nil, &domain.DeviceError{Code: domain.ErrorCodeDeviceUnavailable, Err: cause}
	case <-time.After(c.startupWait):
	}

	go session.deliverLoop()
	return session, nil
}

func captureArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-c:a", "pcm_s16le",
		"pipe:1",
	}
}

func encoderArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-i", "pipe:0",
		"-c:a", "libopus",
		"-f", "webm",
		"pipe:1",
	}
}

type process struct {
	proc   *os.Process
	stdin  io.WriteCloser
	stdout *io.PipeReader
	stderr *syncBuffer
	exited <-chan error
}

func startProcess(ctx context.Context, command string, args []string, withStdin bool) (*process, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr

	var stdin io.WriteCloser
	if withStdin {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		stdin = pipe
	}

	// Wait returns only after everything the process wrote has been copied
	// into the pipe, so trailing container bytes are never lost.
	stdout, stdoutWriter := io.Pipe()
	cmd.Stdout = stdoutWriter

	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		if stdin != nil {
			_ = stdin.Close()
		}
		return nil, err
	}

	exited := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = stdoutWriter.Close()
		exited <- err
		close(exited)
	}()
	return &process{proc: cmd.Process, stdin: stdin, stdout: stdout, stderr: stderr, exited: exited}, nil
}

func (p *process) kill() {
	if p.proc != nil {
		_ = p.proc.Kill()
	}
}

// stop waits for the process to exit, killing it after wait.
func (p *process) stop(wait time.Duration) error {
	select {
	case err, ok := <-p.exited:
		if !ok {
			return nil
		}
		return normalizeStopErr(err)
	case <-time.After(wait):
		p.kill()
		err, ok := <-p.exited
		if !ok {
			return nil
		}
		return normalizeStopErr(err)
	}
}

type ffmpegSession struct {
	capture   *process
	encoder   *process
	frameSize int
	sink      ports.ChunkSink
	interval  time.Duration
	stopWait  time.Duration

	mu      sync.Mutex
	state   ports.DeviceState
	closing bool
	pumpErr error
	readErr error

	reads chan []byte
	done  chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (s *ffmpegSession) State() ports.DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pause stops forwarding device audio to the encoder. The device is still
// read so nothing buffers up while paused.
func (s *ffmpegSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == ports.DeviceStateRecording {
		s.state = ports.DeviceStatePaused
	}
	return nil
}

func (s *ffmpegSession) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == ports.DeviceStatePaused {
		s.state = ports.DeviceStateRecording
	}
	return nil
}

// Close asks the capture process to stop, lets the encoder finish the
// container and waits for the final chunk to be delivered.
func (s *ffmpegSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.state = ports.DeviceStateClosed
		s.mu.Unlock()

		if s.capture.proc != nil {
			_ = s.capture.proc.Signal(os.Interrupt)
		}
		s.closeErr = s.capture.stop(s.stopWait)
		if err := s.encoder.stop(s.stopWait); s.closeErr == nil {
			s.closeErr = err
		}

		<-s.done

		if closeErr := s.encoder.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.closeErr == nil {
			s.closeErr = closeErr
		}
		if s.closeErr != nil {
			if detail := s.stderrDetail(); detail != "" {
				s.closeErr = fmt.Errorf("%w: %s", s.closeErr, detail)
			}
		}
	})
	return s.closeErr
}

func (s *ffmpegSession) forwarding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != ports.DeviceStatePaused
}

// pumpLoop moves PCM from the capture process to the encoder, dropping what
// arrives while paused. It closes the encoder input when capture ends.
func (s *ffmpegSession) pumpLoop() {
	defer s.encoder.stdin.Close()

	err := pumpFrames(s.capture.stdout, s.encoder.stdin, s.frameSize, s.forwarding)
	if err == nil {
		return
	}
	s.mu.Lock()
	s.pumpErr = err
	s.mu.Unlock()
	// Unblock the capture process; nothing can consume its output anymore.
	_ = s.capture.stdout.CloseWithError(err)
	s.capture.kill()
}

// pumpFrames copies whole frames from src to dst while forward reports true.
// Partial frames are carried over so samples stay aligned across drops.
func pumpFrames(src io.Reader, dst io.Writer, frameSize int, forward func() bool) error {
	if frameSize <= 0 {
		frameSize = 1
	}
	buf := make([]byte, 32*1024)
	var carry []byte
	for {
		n, err := src.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			whole := len(data) - len(data)%frameSize
			if whole > 0 && forward() {
				if _, writeErr := dst.Write(data[:whole]); writeErr != nil {
					return fmt.Errorf("failed to feed encoder: %w", writeErr)
				}
			}
			carry = append([]byte(nil), data[whole:]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}

func (s *ffmpegSession) readLoop() {
	defer close(s.reads)
	for {
		buf := make([]byte, 32*1024)
		n, err := s.encoder.stdout.Read(buf)
		if n > 0 {
			s.reads <- buf[:n]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
			}
			return
		}
	}
}

// discard drains encoder output for a session that never started delivering.
func (s *ffmpegSession) discard() {
	_ = s.capture.stdout.Close()
	_ = s.encoder.stdout.Close()
	go func() {
		for range s.reads {
		}
	}()
}

// deliverLoop hands buffered encoder output to the sink once per interval, in order.
func (s *ffmpegSession) deliverLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var pending []byte
	flush := func() {
		if len(pending) == 0 {
			return
		}
		s.sink.Chunk(pending)
		pending = nil
	}

	for {
		select {
		case data, ok := <-s.reads:
			if !ok {
				flush()
				s.mu.Lock()
				closing, err := s.closing, s.pumpErr
				if err == nil {
					err = s.readErr
				}
				s.mu.Unlock()
				if !closing {
					if err == nil {
						err = errors.New("audio capture ended unexpectedly")
					}
					if detail := s.stderrDetail(); detail != "" {
						err = fmt.Errorf("%w: %s", err, detail)
					}
					s.sink.Fault(err)
				}
				return
			}
			pending = append(pending, data...)
		case <-ticker.C:
			flush()
		}
	}
}

func (s *ffmpegSession) stderrDetail() string {
	var parts []string
	if detail := stringsTrimSpaceSafe(s.capture.stderr.String()); detail != "" {
		parts = append(parts, detail)
	}
	if detail := stringsTrimSpaceSafe(s.encoder.stderr.String()); detail != "" {
		parts = append(parts, detail)
	}
	return strings.Join(parts, "; ")
}

func classifyStartupFailure(err error, detail string) *domain.DeviceError {
	cause := errors.New("ffmpeg exited before capture started")
	if err != nil {
		cause = fmt.Errorf("ffmpeg exited before capture started: %w", err)
	}
	if detail != "" {
		cause = fmt.Errorf("%w: %s", cause, detail)
	}

	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "access denied"), strings.Contains(lower, "not allowed"):
		return &domain.DeviceError{Code: domain.ErrorCodePermissionDenied, Err: cause}
	case strings.Contains(lower, "no such file"), strings.Contains(lower, "no such device"),
		strings.Contains(lower, "no such entity"), strings.Contains(lower, "not found"):
		return &domain.DeviceError{Code: domain.ErrorCodeDeviceNotFound, Err: cause}
	default:
		return &domain.DeviceError{Code: domain.ErrorCodeDeviceUnavailable, Err: cause}
	}
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
