// Package audio plays raw PCM synthesis output through the default
// output device using the oto/v3 library.
package audio
