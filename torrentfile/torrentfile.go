package torrentfile

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	jackpal "github.com/jackpal/bencode-go"

	"github.com/vaguilera/MiniTorrent/bencode"
)

func pieceHashes(buffer []byte) ([][20]byte, error) {
	lenbuffer := len(buffer)

	if lenbuffer%20 != 0 {
		return nil, &ParseError{
			Field: "pieces",
			Err:   fmt.Errorf("length %d is not a multiple of 20", lenbuffer),
		}
	}

	hashes := make([][20]byte, lenbuffer/20)
	for i := 0; i < len(hashes); i++ {
		copy(hashes[i][:], buffer[i*20:(i+1)*20])
	}
	return hashes, nil
}

func generateInfoHash(info bencode.Value) [20]byte {
	return sha1.Sum(bencode.Encode(info))
}

func requireInt(d *bencode.Dict, field string) (int64, error) {
	v, ok := d.Get(field)
	if !ok {
		return 0, missingField(field)
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, mistypedField(field, "integer")
	}
	return n, nil
}

func requireBytes(d *bencode.Dict, field string) ([]byte, error) {
	v, ok := d.Get(field)
	if !ok {
		return nil, missingField(field)
	}
	b, ok := v.AsBytes()
	if !ok {
		return nil, mistypedField(field, "string")
	}
	return b, nil
}

// InfoFromValue builds an Info from a decoded info dictionary. The info
// hash is taken over the canonical encoding of v itself.
func InfoFromValue(v bencode.Value) (*Info, error) {
	d, ok := v.AsDict()
	if !ok {
		return nil, mistypedField("info", "dictionary")
	}

	length, err := requireInt(d, "length")
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, &ParseError{Field: "length", Err: fmt.Errorf("negative value %d", length)}
	}
	name, err := requireBytes(d, "name")
	if err != nil {
		return nil, err
	}
	pieceLength, err := requireInt(d, "piece length")
	if err != nil {
		return nil, err
	}
	if pieceLength <= 0 {
		return nil, &ParseError{Field: "piece length", Err: fmt.Errorf("non-positive value %d", pieceLength)}
	}
	rawPieces, err := requireBytes(d, "pieces")
	if err != nil {
		return nil, err
	}
	hashes, err := pieceHashes(rawPieces)
	if err != nil {
		return nil, err
	}
	if want := (length + pieceLength - 1) / pieceLength; int64(len(hashes)) != want {
		return nil, &ParseError{
			Field: "pieces",
			Err:   fmt.Errorf("%d hashes for %d pieces", len(hashes), want),
		}
	}

	return &Info{
		Length:      length,
		Name:        string(name),
		PieceLength: pieceLength,
		Pieces:      hashes,
		InfoHash:    generateInfoHash(v),
		Raw:         v,
	}, nil
}

// FromValue builds a Torrent from a decoded .torrent dictionary.
func FromValue(v bencode.Value) (*Torrent, error) {
	if _, ok := v.AsDict(); !ok {
		return nil, mistypedField("", "dictionary")
	}
	announceValue, ok := v.Get("announce")
	if !ok {
		return nil, missingField("announce")
	}
	announce, ok := announceValue.AsString()
	if !ok {
		return nil, mistypedField("announce", "string")
	}
	infoValue, ok := v.Get("info")
	if !ok {
		return nil, missingField("info")
	}
	info, err := InfoFromValue(infoValue)
	if err != nil {
		return nil, err
	}
	return &Torrent{Announce: announce, Info: *info}, nil
}

// FromBytes decodes and builds a Torrent from the contents of a .torrent file.
func FromBytes(data []byte) (*Torrent, error) {
	v, _, err := bencode.Decode(data)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return FromValue(v)
}

// TorrentFromFile creates Torrent entity from .torrent file
func TorrentFromFile(fileName string) (*Torrent, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}

	torrent, err := FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse torrent file %s: %w", fileName, err)
	}
	torrent.logInfo()
	return torrent, nil
}

// Describe extracts the optional descriptive fields of a .torrent file.
func Describe(data []byte) (*Description, error) {
	var desc Description
	if err := jackpal.Unmarshal(bytes.NewReader(data), &desc); err != nil {
		return nil, &ParseError{Err: err}
	}
	return &desc, nil
}

// NumPieces returns how many pieces the file is split into.
func (info *Info) NumPieces() int {
	return len(info.Pieces)
}

// PieceSize returns the size of piece index. Every piece is PieceLength
// bytes except the last one, which holds what remains of the file.
func (info *Info) PieceSize(index int) (int64, error) {
	if index < 0 || index >= len(info.Pieces) {
		return 0, fmt.Errorf("piece %d out of range [0, %d)", index, len(info.Pieces))
	}
	if index == len(info.Pieces)-1 {
		if rem := info.Length % info.PieceLength; rem != 0 {
			return rem, nil
		}
	}
	return info.PieceLength, nil
}

// PieceOffset returns the position of piece index inside the file.
func (info *Info) PieceOffset(index int) int64 {
	return int64(index) * info.PieceLength
}

func (info *Info) InfoHashHex() string {
	return hex.EncodeToString(info.InfoHash[:])
}

func (info *Info) PieceHashesHex() []string {
	out := make([]string, len(info.Pieces))
	for i, h := range info.Pieces {
		out[i] = hex.EncodeToString(h[:])
	}
	return out
}

func (t *Torrent) logInfo() {
	slog.Debug("torrent loaded",
		"tracker", t.Announce,
		"name", t.Info.Name,
		"length", t.Info.Length,
		"piece length", t.Info.PieceLength,
		"pieces", len(t.Info.Pieces),
		"info hash", t.Info.InfoHashHex(),
	)
}

func (d *Description) LogValue() slog.Value {
	attrs := []slog.Attr{slog.Any("trackers", d.AnnounceList)}
	if d.CreationDate > 0 {
		attrs = append(attrs, slog.Time("creation date", time.Unix(d.CreationDate, 0)))
	}
	attrs = append(attrs,
		slog.String("comment", d.Comment),
		slog.String("created by", d.CreatedBy),
	)
	return slog.GroupValue(attrs...)
}

// IsParseError reports whether err came from decoding or validating
// torrent metadata.
func IsParseError(err error) bool {
	return errors.Is(err, ErrParse)
}
