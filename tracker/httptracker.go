package tracker

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	bencode "github.com/jackpal/bencode-go"
)

type httpResponse struct {
	FailureReason string `bencode:"failure reason"`
	Interval      int    `bencode:"interval"`
	Peers         string `bencode:"peers"`
}

// HTTPTracker announces over HTTP and asks for a compact peer list.
type HTTPTracker struct {
	Client *http.Client
}

func NewHTTPTracker() *HTTPTracker {
	return &HTTPTracker{Client: &http.Client{Timeout: 15 * time.Second}}
}

func announceURL(req Request) (string, error) {
	baseURL, err := url.Parse(req.Announce)
	if err != nil {
		return "", err
	}
	params := baseURL.Query()
	params.Set("info_hash", string(req.InfoHash[:]))
	params.Set("peer_id", string(req.PeerID[:]))
	params.Set("port", strconv.Itoa(int(req.Port)))
	params.Set("uploaded", "0")
	params.Set("downloaded", "0")
	params.Set("left", strconv.FormatInt(req.Left, 10))
	params.Set("compact", "1")
	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

func (t *HTTPTracker) Announce(req Request) ([]Peer, error) {
	u, err := announceURL(req)
	if err != nil {
		return nil, fmt.Errorf("invalid announce url %q: %w", req.Announce, err)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(u)
	if err != nil {
		return nil, fmt.Errorf("error fetching tracker %s: %w", req.Announce, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker responded with non OK status: %d", resp.StatusCode)
	}

	var response httpResponse
	if err := bencode.Unmarshal(resp.Body, &response); err != nil {
		return nil, fmt.Errorf("error unmarshalling tracker response: %w", err)
	}
	if response.FailureReason != "" {
		return nil, fmt.Errorf("tracker failure: %s", response.FailureReason)
	}

	peers, err := ParseCompact([]byte(response.Peers))
	if err != nil {
		return nil, err
	}
	slog.Info("tracker answered", "tracker", req.Announce, "peers", len(peers), "interval", response.Interval)
	return peers, nil
}
