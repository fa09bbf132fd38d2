/*
 * Copyright 2020 Tero Vierimaa
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package interfaces

import (
	"bytes"
	"fmt"
)

// AudioFormat identifies a decodable audio container.
type AudioFormat string

func (a AudioFormat) String() string {
	return string(a)
}

const (
	AudioFormatFlac AudioFormat = "flac"
	AudioFormatMp3  AudioFormat = "mp3"
	AudioFormatOgg  AudioFormat = "ogg"
	AudioFormatWav  AudioFormat = "wav"
	// AudioFormatNil represents an empty format, used for errors or unknown types.
	AudioFormatNil AudioFormat = ""
)

// SupportedAudioFormats lists all audio formats supported by the player backend.
var SupportedAudioFormats = []AudioFormat{
	AudioFormatFlac,
	AudioFormatMp3,
	AudioFormatOgg,
	AudioFormatWav,
}

// MimeToAudioFormat converts a MIME type string to an AudioFormat.
// Returns AudioFormatNil and an error if the MIME type is not recognized.
func MimeToAudioFormat(mimeType string) (format AudioFormat, err error) {
	format = AudioFormatNil
	switch mimeType {
	case "audio/mpeg":
		format = AudioFormatMp3
	case "audio/flac":
		format = AudioFormatFlac
	case "audio/ogg":
		format = AudioFormatOgg
	case "audio/wav":
		format = AudioFormatWav
	default:
		err = fmt.Errorf("unidentified audio format: %s", mimeType)
	}
	return
}

// SniffFormat identifies a format from the first bytes of a file. The
// cache stores bare .bin files, so the container is recognized by magic
// number rather than extension: ID3 tag or MPEG frame sync for mp3,
// "fLaC", "OggS", "RIFF". Needs at least 4 bytes; shorter input is
// AudioFormatNil.
func SniffFormat(header []byte) AudioFormat {
	if len(header) < 4 {
		return AudioFormatNil
	}
	switch {
	case bytes.HasPrefix(header, []byte("fLaC")):
		return AudioFormatFlac
	case bytes.HasPrefix(header, []byte("OggS")):
		return AudioFormatOgg
	case bytes.HasPrefix(header, []byte("RIFF")):
		return AudioFormatWav
	case bytes.HasPrefix(header, []byte("ID3")):
		return AudioFormatMp3
	case header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		return AudioFormatMp3
	default:
		return AudioFormatNil
	}
}
