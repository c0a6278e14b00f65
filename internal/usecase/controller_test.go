package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"dialoguerec/internal/domain"
	"dialoguerec/internal/validation"
)

type harness struct {
	controller *CaptureController
	capture    *fakeAudioCapture
	devices    []*fakeDevice
	clock      *fakeClock
	uploader   *fakeRecordingUploader
	previews   *fakePreviewStore
	events     *fakeEventSink
}

func newHarness(t *testing.T, ceiling int) *harness {
	t.Helper()

	h := &harness{
		devices: []*fakeDevice{
			{trailing: [][]byte{[]byte("-tail")}},
			{trailing: [][]byte{[]byte("-tail2")}},
		},
		clock:    &fakeClock{},
		uploader: &fakeRecordingUploader{},
		previews: newFakePreviewStore(),
		events:   &fakeEventSink{},
	}
	h.capture = &fakeAudioCapture{sessions: append(h.devices[:0:0], h.devices...)}
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h.controller = NewCaptureController(h.capture, h.uploader, h.previews, h.events, zap.NewNop(), Config{
		NewTicker: h.clock.NewTicker,
		Ceiling:   ceiling,
		Now:       func() time.Time { return created },
	})
	t.Cleanup(func() { _ = h.controller.Close() })
	return h
}

func (h *harness) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if !h.clock.tick() {
			t.Fatalf("tick %d was not received", i+1)
		}
	}
}

func (h *harness) waitElapsed(t *testing.T, want int) {
	t.Helper()
	waitFor(t, "elapsed seconds", func() bool {
		elapsed := h.events.snapshotElapsed()
		return len(elapsed) > 0 && elapsed[len(elapsed)-1] == want
	})
}

func TestCaptureControllerRecordStopProducesArtifact(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	if err := h.controller.Start(context.Background(), "  Session A  "); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	device := h.devices[0]
	device.emit("ab")
	device.emit("cd")
	h.tick(t, 3)
	h.waitElapsed(t, 3)

	artifact, err := h.controller.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if string(artifact.Bytes) != "abcd-tail" {
		t.Fatalf("unexpected artifact bytes %q", artifact.Bytes)
	}
	if artifact.MIMEType != RecordingMIMEType || artifact.SizeBytes != len("abcd-tail") {
		t.Fatalf("unexpected artifact metadata: %+v", artifact)
	}
	if artifact.PreviewHandle == "" || h.previews.liveCount() != 1 {
		t.Fatalf("expected one live preview handle, got %q (%d live)", artifact.PreviewHandle, h.previews.liveCount())
	}

	status := h.controller.Status()
	if status.State != domain.SessionStateStopped || status.Active {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.ElapsedSeconds != 3 || status.Elapsed != "00:03" || status.Title != "Session A" {
		t.Fatalf("unexpected status timing/title: %+v", status)
	}
	if status.Artifact == nil || status.Artifact.SizeBytes != artifact.SizeBytes {
		t.Fatalf("expected artifact summary, got %+v", status.Artifact)
	}

	if got := h.events.snapshotElapsed(); len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("unexpected elapsed events: %v", got)
	}
	states := h.events.snapshotStates()
	if len(states) != 2 || states[0].reason != domain.SessionReasonRecordingStarted || states[1].reason != domain.SessionReasonRecordingStopped {
		t.Fatalf("unexpected transitions: %+v", states)
	}
	if h.clock.tick() {
		t.Fatalf("timer still running after stop")
	}
}

func TestCaptureControllerStartRequiresTitle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	err := h.controller.Start(context.Background(), "   ")
	if !errors.Is(err, validation.ErrTitleMissing) {
		t.Fatalf("expected title missing, got %v", err)
	}
	if h.capture.openCount() != 0 {
		t.Fatalf("device must not be opened without a title")
	}
	if state := h.controller.Status().State; state != domain.SessionStateIdle {
		t.Fatalf("expected idle, got %s", state)
	}
}

func TestCaptureControllerStartRejectsExistingSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	if err := h.controller.Start(context.Background(), "one"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := h.controller.Start(context.Background(), "two"); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive while recording, got %v", err)
	}
	if _, err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := h.controller.Start(context.Background(), "two"); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive while stopped, got %v", err)
	}
}

func TestCaptureControllerStartClassifiesDeviceErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want domain.ErrorCode
	}{
		"permission": {err: &domain.DeviceError{Code: domain.ErrorCodePermissionDenied}, want: domain.ErrorCodePermissionDenied},
		"missing":    {err: &domain.DeviceError{Code: domain.ErrorCodeDeviceNotFound}, want: domain.ErrorCodeDeviceNotFound},
		"other":      {err: errors.New("busy"), want: domain.ErrorCodeDeviceUnavailable},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, 0)
			h.capture.err = tc.err
			err := h.controller.Start(context.Background(), "title")

			var deviceErr *domain.DeviceError
			if !errors.As(err, &deviceErr) || deviceErr.Code != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
			if state := h.controller.Status().State; state != domain.SessionStateIdle {
				t.Fatalf("expected idle after device failure, got %s", state)
			}
			if len(h.events.snapshotStates()) != 0 {
				t.Fatalf("no transition expected")
			}
		})
	}
}

func TestCaptureControllerPauseFreezesTimer(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	if err := h.controller.Start(context.Background(), "title"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.tick(t, 2)
	h.waitElapsed(t, 2)

	if err := h.controller.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := h.controller.Pause(); err != nil {
		t.Fatalf("second pause should be a no-op, got %v", err)
	}
	status := h.controller.Status()
	if status.State != domain.SessionStatePaused || status.ElapsedSeconds != 2 {
		t.Fatalf("unexpected paused status: %+v", status)
	}
	if h.clock.tick() {
		t.Fatalf("tick delivered while paused")
	}

	if err := h.controller.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if h.clock.count() != 2 {
		t.Fatalf("expected a fresh ticker after resume, got %d", h.clock.count())
	}
	h.tick(t, 1)
	h.waitElapsed(t, 3)

	if got := h.events.lastReason(); got != domain.SessionReasonRecordingResumed {
		t.Fatalf("unexpected last reason %s", got)
	}
}

func TestCaptureControllerPauseResumeNoopWithoutMatchingState(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	if err := h.controller.Pause(); err != nil {
		t.Fatalf("pause while idle should be a no-op, got %v", err)
	}
	if err := h.controller.Start(context.Background(), "title"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := h.controller.Resume(); err != nil {
		t.Fatalf("resume while recording should be a no-op, got %v", err)
	}
	if state := h.controller.Status().State; state != domain.SessionStateRecording {
		t.Fatalf("expected recording, got %s", state)
	}
}

func TestCaptureControllerPauseFailureKeepsRecording(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.devices[0].pauseErr = errors.New("cannot pause")
	if err := h.controller.Start(context.Background(), "title"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := h.controller.Pause(); err == nil {
		t.Fatalf("expected pause error")
	}
	if state := h.controller.Status().State; state != domain.SessionStateRecording {
		t.Fatalf("expected recording, got %s", state)
	}
	h.tick(t, 1)
	h.waitElapsed(t, 1)
}

func TestCaptureControllerStopsAtCeiling(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	if err := h.controller.Start(context.Background(), "title"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.devices[0].emit("data")
	h.tick(t, 2)

	waitFor(t, "ceiling stop", func() bool {
		return h.controller.Status().State == domain.SessionStateStopped
	})
	if got := h.events.lastReason(); got != domain.SessionReasonCeilingReached {
		t.Fatalf("expected ceiling reason, got %s", got)
	}
	artifact, ok := h.controller.Artifact()
	if !ok || string(artifact.Bytes) != "data-tail" {
		t.Fatalf("expected artifact after ceiling, got %q (%v)", artifact.Bytes, ok)
	}
	if h.controller.Status().ElapsedSeconds != 2 {
		t.Fatalf("elapsed must stop at the ceiling")
	}
	if h.clock.tick() {
		t.Fatalf("timer still running after ceiling")
	}
}

func TestCaptureControllerDeviceFaultStopsWithoutArtifact(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	if err := h.controller.Start(context.Background(), "title"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	device := h.devices[0]
	device.emit("partial")
	device.fault(errors.New("device unplugged"))

	waitFor(t, "fault handling", func() bool {
		return h.controller.Status().State == domain.SessionStateStopped
	})
	status := h.controller.Status()
	if status.Artifact != nil {
		t.Fatalf("fault must not produce an artifact")
	}
	if !strings.Contains(status.Message, "device unplugged") {
		t.Fatalf("expected fault message, got %q", status.Message)
	}
	errs := h.events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeRecordingFailed {
		t.Fatalf("unexpected error events: %+v", errs)
	}
	if got := h.events.lastReason(); got != domain.SessionReasonRecordingFailed {
		t.Fatalf("unexpected last reason %s", got)
	}
	if device.closeCount() == 0 {
		t.Fatalf("device must be closed on fault")
	}
	if _, err := h.controller.Upload(context.Background(), UploadOptions{}); !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("expected ErrNoArtifact, got %v", err)
	}

	if err := h.controller.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if err := h.controller.Start(context.Background(), "again"); err != nil {
		t.Fatalf("restart after fault failed: %v", err)
	}
}

func TestCaptureControllerIgnoresChunksAfterStop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	if err := h.controller.Start(context.Background(), "title"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.devices[0].emit("a")
	artifact, err := h.controller.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	h.devices[0].emit("late")

	again, ok := h.controller.Artifact()
	if !ok || string(again.Bytes) != string(artifact.Bytes) {
		t.Fatalf("artifact changed after stop: %q", again.Bytes)
	}
}

func TestCaptureControllerResetReleasesPreview(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	if err := h.controller.Reset(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession while idle, got %v", err)
	}
	if err := h.controller.Start(context.Background(), "title"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if h.previews.liveCount() != 1 {
		t.Fatalf("expected a live preview")
	}

	if err := h.controller.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if h.previews.liveCount() != 0 {
		t.Fatalf("reset must release the preview handle")
	}
	status := h.controller.Status()
	if status.State != domain.SessionStateIdle || status.Artifact != nil || status.ElapsedSeconds != 0 {
		t.Fatalf("unexpected status after reset: %+v", status)
	}
	if got := h.events.lastReason(); got != domain.SessionReasonRecordingReset {
		t.Fatalf("unexpected last reason %s", got)
	}
}

func TestCaptureControllerUploadSuccessDiscardsSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.uploader.progress = []int{10, 50, 40, 100}
	if err := h.controller.Start(context.Background(), "My session"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.devices[0].emit("voice")
	if _, err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	dialogue, err := h.controller.Upload(context.Background(), UploadOptions{TemplateID: "tpl-1"})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if dialogue.ID != "dlg-1" || dialogue.Title != "My session" || dialogue.TemplateID != "tpl-1" {
		t.Fatalf("unexpected dialogue: %+v", dialogue)
	}
	if got := string(h.uploader.calls[0].Artifact.Bytes); got != "voice-tail" {
		t.Fatalf("unexpected uploaded bytes %q", got)
	}

	progress := h.events.snapshotProgress()
	want := []int{0, 10, 50, 100, 0}
	if len(progress) != len(want) {
		t.Fatalf("unexpected progress events: %v", progress)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("unexpected progress events: %v", progress)
		}
	}

	status := h.controller.Status()
	if status.State != domain.SessionStateIdle || status.Artifact != nil || status.Upload != domain.UploadStatusSucceeded || status.Progress != 0 {
		t.Fatalf("unexpected status after upload: %+v", status)
	}
	if h.previews.liveCount() != 0 {
		t.Fatalf("upload success must release the preview")
	}
	if got := h.events.lastReason(); got != domain.SessionReasonRecordingUploaded {
		t.Fatalf("unexpected last reason %s", got)
	}
}

func TestCaptureControllerUploadFailureKeepsArtifact(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.uploader.setErr(errors.New("server said no"))
	if err := h.controller.Start(context.Background(), "title"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if _, err := h.controller.Upload(context.Background(), UploadOptions{}); err == nil {
		t.Fatalf("expected upload error")
	}
	status := h.controller.Status()
	if status.State != domain.SessionStateStopped || status.Artifact == nil || status.Upload != domain.UploadStatusFailed {
		t.Fatalf("artifact must survive a failed upload: %+v", status)
	}
	if !strings.Contains(status.Message, "server said no") {
		t.Fatalf("expected failure message, got %q", status.Message)
	}
	if h.previews.liveCount() != 1 {
		t.Fatalf("preview must stay live after a failed upload")
	}

	h.uploader.setErr(nil)
	if _, err := h.controller.Upload(context.Background(), UploadOptions{}); err != nil {
		t.Fatalf("resubmission failed: %v", err)
	}
	if h.uploader.callCount() != 2 {
		t.Fatalf("expected two attempts, got %d", h.uploader.callCount())
	}
}

func TestCaptureControllerRejectsConcurrentUpload(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.uploader.block = make(chan struct{})
	h.uploader.entered = make(chan struct{}, 1)
	if err := h.controller.Start(context.Background(), "title"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		_, err := h.controller.Upload(context.Background(), UploadOptions{})
		result <- err
	}()
	<-h.uploader.entered

	if _, err := h.controller.Upload(context.Background(), UploadOptions{}); !errors.Is(err, domain.ErrUploadInProgress) {
		t.Fatalf("expected ErrUploadInProgress, got %v", err)
	}
	if err := h.controller.Reset(); !errors.Is(err, domain.ErrUploadInProgress) {
		t.Fatalf("reset must be rejected while uploading, got %v", err)
	}
	if status := h.controller.Status(); status.Upload != domain.UploadStatusSending {
		t.Fatalf("expected sending status, got %s", status.Upload)
	}

	close(h.uploader.block)
	if err := <-result; err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	if h.uploader.callCount() != 1 {
		t.Fatalf("rejected upload must not reach the transport")
	}
}

func TestCaptureControllerUploadValidatesTitle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	if err := h.controller.Start(context.Background(), "title"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := h.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	_, err := h.controller.Upload(context.Background(), UploadOptions{Title: strings.Repeat("x", validation.MaxTitleLength+1)})
	var validationErr *validation.Error
	if !errors.As(err, &validationErr) || validationErr.Code != domain.ErrorCodeTitleTooLong {
		t.Fatalf("expected title too long, got %v", err)
	}
	if h.uploader.callCount() != 0 {
		t.Fatalf("invalid title must not reach the transport")
	}
}

func TestCaptureControllerUploadRejectsEmptyRecording(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.devices[0].trailing = nil
	if err := h.controller.Start(context.Background(), "silent"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	artifact, err := h.controller.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if artifact.SizeBytes != 0 {
		t.Fatalf("expected an empty artifact, got %d bytes", artifact.SizeBytes)
	}

	if _, err := h.controller.Upload(context.Background(), UploadOptions{}); !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("expected ErrNoArtifact, got %v", err)
	}
	if h.uploader.callCount() != 0 {
		t.Fatalf("empty recording must not reach the transport")
	}
	if status := h.controller.Status(); status.State != domain.SessionStateStopped || status.Upload != domain.UploadStatusIdle {
		t.Fatalf("rejected upload must leave the session untouched: %+v", status)
	}
}

func TestCaptureControllerStopWithoutActiveSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	if _, err := h.controller.Stop(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestCaptureControllerCloseTearsDownRecording(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	if err := h.controller.Start(context.Background(), "title"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := h.controller.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if h.devices[0].closeCount() != 1 {
		t.Fatalf("expected device closed once, got %d", h.devices[0].closeCount())
	}
	if state := h.controller.Status().State; state != domain.SessionStateIdle {
		t.Fatalf("expected idle after close, got %s", state)
	}
	if h.clock.tick() {
		t.Fatalf("timer still running after close")
	}
}
