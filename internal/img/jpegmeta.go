package img

import "bytes"

// ICC profiles travel in APP2 segments with a fixed identifier followed by
// a sequence/count byte pair; profiles larger than one segment are split.
var iccHeader = []byte("ICC_PROFILE\x00")

const maxICCChunk = 65535 - 2 - 14 // segment length field minus the ICC header

// ExtractICC returns the ICC profile embedded in a JPEG stream, or nil when
// the stream carries none.
func ExtractICC(data []byte) []byte {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil
	}

	chunks := map[int][]byte{}
	total := 0
	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			break
		}
		marker := data[i+1]
		// Standalone markers carry no length field.
		if marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7) {
			i += 2
			continue
		}
		// Entropy-coded data follows SOS; nothing of interest after it.
		if marker == 0xDA || marker == 0xD9 {
			break
		}
		length := int(data[i+2])<<8 | int(data[i+3])
		if length < 2 || i+2+length > len(data) {
			break
		}
		if marker == 0xE2 {
			payload := data[i+4 : i+2+length]
			if len(payload) > len(iccHeader)+2 && bytes.HasPrefix(payload, iccHeader) {
				seq := int(payload[len(iccHeader)])
				total = int(payload[len(iccHeader)+1])
				chunks[seq] = payload[len(iccHeader)+2:]
			}
		}
		i += 2 + length
	}

	if total == 0 || len(chunks) != total {
		return nil
	}
	var profile []byte
	for seq := 1; seq <= total; seq++ {
		chunk, ok := chunks[seq]
		if !ok {
			return nil
		}
		profile = append(profile, chunk...)
	}
	return profile
}

// InjectICC returns a copy of the JPEG stream with the profile spliced in as
// APP2 segments directly after any leading APP0/APP1 segments. A nil or
// empty profile returns the input unchanged.
func InjectICC(data, profile []byte) []byte {
	if len(profile) == 0 || len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return data
	}

	// Insertion point: after SOI and any JFIF/EXIF application segments.
	i := 2
	for i+4 <= len(data) && data[i] == 0xFF && (data[i+1] == 0xE0 || data[i+1] == 0xE1) {
		length := int(data[i+2])<<8 | int(data[i+3])
		if length < 2 || i+2+length > len(data) {
			return data
		}
		i += 2 + length
	}

	count := (len(profile) + maxICCChunk - 1) / maxICCChunk
	if count > 255 {
		return data
	}

	out := make([]byte, 0, len(data)+len(profile)+count*18)
	out = append(out, data[:i]...)
	for seq := 1; seq <= count; seq++ {
		start := (seq - 1) * maxICCChunk
		end := start + maxICCChunk
		if end > len(profile) {
			end = len(profile)
		}
		chunk := profile[start:end]
		segLen := 2 + len(iccHeader) + 2 + len(chunk)
		out = append(out, 0xFF, 0xE2, byte(segLen>>8), byte(segLen))
		out = append(out, iccHeader...)
		out = append(out, byte(seq), byte(count))
		out = append(out, chunk...)
	}
	out = append(out, data[i:]...)
	return out
}
