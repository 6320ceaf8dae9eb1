package speech

import "errors"

var (
	// ErrEngineUnavailable is returned by [New] when no audio graph can be
	// used, either because none was supplied or because its nodes could not
	// be created and wired.
	ErrEngineUnavailable = errors.New("speech: audio engine unavailable")

	// ErrEngineStartFailed is returned by [New] when the audio graph refuses
	// to start. The scheduler does not retry.
	ErrEngineStartFailed = errors.New("speech: audio engine failed to start")

	// ErrSynthesisFailed wraps the provider error reported to
	// [Observer.SynthesisFailed] when an item produced no playable audio.
	ErrSynthesisFailed = errors.New("speech: synthesis failed")

	// ErrClosed is returned by operations on a closed [Scheduler].
	ErrClosed = errors.New("speech: scheduler closed")

	// ErrInvalidOption is returned by [New] for out-of-range options.
	ErrInvalidOption = errors.New("speech: invalid option")
)
