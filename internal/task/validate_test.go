package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFile(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		size     int64
		wantErr  error
	}{
		{name: "wav ok", filename: "speech.wav", size: 2 << 20},
		{name: "mp3 ok", filename: "speech.mp3", size: 1024},
		{name: "flac ok", filename: "speech.flac", size: 1024},
		{name: "ogg ok", filename: "speech.ogg", size: 1024},
		{name: "m4a ok", filename: "speech.m4a", size: 1024},
		{name: "uppercase extension ok", filename: "SPEECH.WAV", size: 1024},
		{name: "exactly at limit ok", filename: "big.wav", size: MaxFileSize},
		{name: "one byte over limit", filename: "big.wav", size: MaxFileSize + 1, wantErr: ErrFileTooLarge},
		{name: "unsupported extension", filename: "video.mp4", size: 1024, wantErr: ErrUnsupportedType},
		{name: "no extension", filename: "speech", size: 1024, wantErr: ErrUnsupportedType},
		{name: "extension only checked by suffix", filename: "speech.wav.exe", size: 1024, wantErr: ErrUnsupportedType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateFile(tc.filename, tc.size)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("empty upload rejected", func(t *testing.T) {
		assert.Error(t, ValidateFile("speech.wav", 0))
	})
}

func TestAllowedExtensions(t *testing.T) {
	assert.Equal(t, []string{".flac", ".m4a", ".mp3", ".ogg", ".wav"}, AllowedExtensions())
}
