package torrentp2p

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"sort"

	"github.com/vaguilera/MiniTorrent/torrentfile"
)

type blockRequest struct {
	Index  uint32
	Begin  uint32
	Length uint32
}

func (r blockRequest) payload() []byte {
	var payload [12]byte
	binary.BigEndian.PutUint32(payload[0:], r.Index)
	binary.BigEndian.PutUint32(payload[4:], r.Begin)
	binary.BigEndian.PutUint32(payload[8:], r.Length)
	return payload[:]
}

// blockRequests splits a piece into BlockSize blocks. The last block
// holds the remainder when the piece is not a multiple of BlockSize.
func blockRequests(index int, pieceSize int64) []blockRequest {
	requests := make([]blockRequest, 0, (pieceSize+BlockSize-1)/BlockSize)
	for begin := int64(0); begin < pieceSize; begin += BlockSize {
		blocksize := int64(BlockSize)
		if begin+blocksize > pieceSize {
			blocksize = pieceSize - begin
		}
		requests = append(requests, blockRequest{
			Index:  uint32(index),
			Begin:  uint32(begin),
			Length: uint32(blocksize),
		})
	}
	return requests
}

type block struct {
	offset uint32
	data   []byte
}

// pieceBuffer collects the blocks of one piece in arrival order.
type pieceBuffer struct {
	index  uint32
	size   int64
	blocks []block
}

func newPieceBuffer(index int, size int64) *pieceBuffer {
	return &pieceBuffer{index: uint32(index), size: size}
}

func (pb *pieceBuffer) add(payload []byte) error {
	if len(payload) < 8 {
		return violation(StateCollectBlocks, "piece message of %d bytes", len(payload))
	}
	index := binary.BigEndian.Uint32(payload[0:4])
	if index != pb.index {
		return violation(StateCollectBlocks, "block for piece %d while downloading piece %d", index, pb.index)
	}
	pb.blocks = append(pb.blocks, block{
		offset: binary.BigEndian.Uint32(payload[4:8]),
		data:   payload[8:],
	})
	return nil
}

// assemble orders the blocks by offset and joins them. The result does not
// depend on the order the blocks arrived in.
func (pb *pieceBuffer) assemble() ([]byte, error) {
	sort.Slice(pb.blocks, func(i, j int) bool {
		return pb.blocks[i].offset < pb.blocks[j].offset
	})

	piece := make([]byte, 0, pb.size)
	for _, b := range pb.blocks {
		if int64(b.offset) != int64(len(piece)) {
			return nil, violation(StateCollectBlocks, "block at offset %d, expected offset %d", b.offset, len(piece))
		}
		piece = append(piece, b.data...)
	}
	if int64(len(piece)) != pb.size {
		return nil, violation(StateCollectBlocks, "received %d bytes of a %d byte piece", len(piece), pb.size)
	}
	return piece, nil
}

func checkIntegrity(index int, data []byte, hash [20]byte) error {
	sum := sha1.Sum(data)
	if !bytes.Equal(sum[:], hash[:]) {
		return &IntegrityError{Kind: HashMismatch, Piece: index, Want: hash, Got: sum}
	}
	return nil
}

// DownloadPiece runs the rest of the session after the handshake: it waits
// for the bitfield, declares interest, waits to be unchoked, pipelines a
// request for every block and checks the reassembled piece against its
// hash. The session is good for one piece only.
func (p *Peer) DownloadPiece(info *torrentfile.Info, index int) ([]byte, error) {
	p.piece = index
	size, err := info.PieceSize(index)
	if err != nil {
		return nil, p.fail(err)
	}

	if err := p.awaitBitfield(); err != nil {
		return nil, p.fail(err)
	}

	p.state = StateSendInterested
	if err := p.sendMessage(INTERESTED, nil); err != nil {
		return nil, p.fail(err)
	}

	p.state = StateAwaitUnchoke
	if _, err := p.expect(UNCHOKE); err != nil {
		return nil, p.fail(err)
	}

	p.state = StateRequestBlocks
	requests := blockRequests(index, size)
	for _, req := range requests {
		if err := p.sendMessage(REQUEST, req.payload()); err != nil {
			return nil, p.fail(err)
		}
	}
	p.log.Debug("requested piece", "piece", index, "size", size, "blocks", len(requests))

	p.state = StateCollectBlocks
	buffer := newPieceBuffer(index, size)
	for range requests {
		msg, err := p.expect(PIECE)
		if err != nil {
			return nil, p.fail(err)
		}
		if err := buffer.add(msg.Payload); err != nil {
			return nil, p.fail(err)
		}
	}
	data, err := buffer.assemble()
	if err != nil {
		return nil, p.fail(err)
	}

	p.state = StateVerify
	if err := checkIntegrity(index, data, info.Pieces[index]); err != nil {
		p.log.Warn("piece failed verification", "piece", index)
		return nil, p.fail(err)
	}

	p.state = StateDone
	p.log.Info("piece verified", "piece", index, "size", size)
	return data, nil
}
