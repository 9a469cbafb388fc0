package flatfile

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/temanrandom/menfesbot/internal/db"
)

const (
	blacklistFilename = "blacklist.txt"
	kvFilename        = "kv.json"
)

// flatfileClient keeps the ban set as a line-delimited file of decimal user
// ids, one per line, append-only. The kv cache lives next to it as json.
type flatfileClient struct {
	mutex         sync.Mutex
	blacklistPath string
	kvPath        string
}

func NewFlatfileClient(workDir string) (*flatfileClient, error) {
	c := &flatfileClient{
		blacklistPath: filepath.Join(workDir, blacklistFilename),
		kvPath:        filepath.Join(workDir, kvFilename),
	}
	f, err := os.OpenFile(c.blacklistPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create blacklist file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close blacklist file: %w", err)
	}
	return c, nil
}

func (c *flatfileClient) Close() error {
	return nil
}

func (c *flatfileClient) IsBlacklisted(ctx context.Context, userID int64) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.contains(userID)
}

func (c *flatfileClient) AddToBlacklist(ctx context.Context, userID int64) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	present, err := c.contains(userID)
	if err != nil {
		return false, err
	}
	if present {
		return false, nil
	}

	f, err := os.OpenFile(c.blacklistPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open blacklist file: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d\n", userID); err != nil {
		return false, fmt.Errorf("append blacklist entry: %w", err)
	}
	return true, nil
}

func (c *flatfileClient) contains(userID int64) (bool, error) {
	f, err := os.Open(c.blacklistPath)
	if err != nil {
		return false, fmt.Errorf("open blacklist file: %w", err)
	}
	defer f.Close()

	needle := strconv.FormatInt(userID, 10)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if scanner.Text() == needle {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("scan blacklist file: %w", err)
	}
	return false, nil
}

func (c *flatfileClient) GetKV(ctx context.Context, key string) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	kv, err := c.readKV()
	if err != nil {
		return "", err
	}
	value, ok := kv[key]
	if !ok {
		return "", db.ErrNotFound
	}
	return value, nil
}

func (c *flatfileClient) SetKV(ctx context.Context, key string, value string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	kv, err := c.readKV()
	if err != nil {
		return err
	}
	kv[key] = value

	data, err := json.Marshal(kv)
	if err != nil {
		return fmt.Errorf("marshal kv: %w", err)
	}
	if err := os.WriteFile(c.kvPath, data, 0o644); err != nil {
		return fmt.Errorf("write kv file: %w", err)
	}
	return nil
}

func (c *flatfileClient) readKV() (map[string]string, error) {
	kv := make(map[string]string)
	data, err := os.ReadFile(c.kvPath)
	if err != nil {
		if os.IsNotExist(err) {
			return kv, nil
		}
		return nil, fmt.Errorf("read kv file: %w", err)
	}
	if len(data) == 0 {
		return kv, nil
	}
	if err := json.Unmarshal(data, &kv); err != nil {
		return nil, fmt.Errorf("unmarshal kv: %w", err)
	}
	return kv, nil
}
