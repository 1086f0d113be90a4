package torrentfile

import "github.com/vaguilera/MiniTorrent/bencode"

// Description holds the optional, human oriented fields of a .torrent file.
// None of them take part in downloading.
type Description struct {
	Announce     string     `bencode:"announce"`
	AnnounceList [][]string `bencode:"announce-list"`
	CreationDate int64      `bencode:"creation date"`
	Comment      string     `bencode:"comment"`
	CreatedBy    string     `bencode:"created by"`
}

// Info is the single-file info dictionary of a torrent.
type Info struct {
	Length      int64
	Name        string
	PieceLength int64
	Pieces      [][20]byte
	InfoHash    [20]byte

	// Raw is the dictionary InfoHash was computed from.
	Raw bencode.Value
}

// Torrent Represents a torrent entity
type Torrent struct {
	Announce string
	Info     Info
}

// Magnet is what a magnet URI tells about a torrent before its metadata
// has been fetched.
type Magnet struct {
	Tracker  string
	InfoHash [20]byte
	Name     string
}
