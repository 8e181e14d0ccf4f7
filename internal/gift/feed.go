package gift

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Transfer is one inbound gift transfer seen on the collection wallet.
// Hash plus Lt identifies it globally; the pair is the dedup key, since
// a hash alone can repeat across chain forks.
type Transfer struct {
	Hash       string
	Lt         string
	From       string
	To         string
	Collection string
	ItemID     string
	Memo       string
}

// Key is the processed-transfer set entry for this transfer.
func (t Transfer) Key() string { return t.Hash + ":" + t.Lt }

// Feed lists recent transfers into a wallet. The HTTP implementation
// talks to tonapi; tests substitute a fixture.
type Feed interface {
	Recent(ctx context.Context, wallet string, limit int) ([]Transfer, error)
}

// HTTPFeed reads NFT transfer events from a tonapi-compatible endpoint.
type HTTPFeed struct {
	base   string
	client *http.Client
}

func NewHTTPFeed(base string) *HTTPFeed {
	return &HTTPFeed{
		base:   base,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type eventsResponse struct {
	Events []struct {
		EventID    string `json:"event_id"`
		Lt         int64  `json:"lt"`
		InProgress bool   `json:"in_progress"`
		Actions    []struct {
			Type            string `json:"type"`
			NftItemTransfer *struct {
				Sender *struct {
					Address string `json:"address"`
				} `json:"sender"`
				Recipient *struct {
					Address string `json:"address"`
				} `json:"recipient"`
				Nft        string `json:"nft"`
				Collection string `json:"collection"`
				Comment    string `json:"comment"`
			} `json:"NftItemTransfer"`
		} `json:"actions"`
	} `json:"events"`
}

func (f *HTTPFeed) Recent(ctx context.Context, wallet string, limit int) ([]Transfer, error) {
	endpoint := fmt.Sprintf("%s/v2/accounts/%s/events?limit=%d",
		f.base, url.PathEscape(wallet), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gift feed: unexpected status %d", resp.StatusCode)
	}

	var body eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	var out []Transfer
	for _, ev := range body.Events {
		// Events still settling can change; skip until final.
		if ev.InProgress {
			continue
		}
		for _, act := range ev.Actions {
			if act.Type != "NftItemTransfer" || act.NftItemTransfer == nil {
				continue
			}
			nt := act.NftItemTransfer
			t := Transfer{
				Hash:       ev.EventID,
				Lt:         strconv.FormatInt(ev.Lt, 10),
				ItemID:     nt.Nft,
				Collection: nt.Collection,
				Memo:       nt.Comment,
			}
			if nt.Sender != nil {
				t.From = nt.Sender.Address
			}
			if nt.Recipient != nil {
				t.To = nt.Recipient.Address
			}
			out = append(out, t)
		}
	}
	return out, nil
}
