// Package audio turns two independently timed float sample streams into the
// PCM the recognition service expects. Mixer aligns the screen and microphone
// streams into fixed frames and averages them; Resample converts a frame to
// the target rate as little-endian signed 16-bit PCM.
package audio
