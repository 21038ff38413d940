// Package kg provides the read-side lookup into the regulation graph:
// topic keywords in, applicable regulation tags out.
package kg

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/civic-agent/backend/pkg/logger"
)

type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	logger.Info("Regulation graph client initialized", zap.String("uri", uri))

	return &Client{
		driver:   driver,
		database: database,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// RegulationsFor returns the distinct regulation tags connected to any of
// the given topic keywords.
func (c *Client) RegulationsFor(ctx context.Context, topics []string) ([]string, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (t:Topic)-[:GOVERNED_BY]->(r:Regulation)
		WHERE toLower(t.name) IN $topics
		RETURN DISTINCT r.tag AS tag
		ORDER BY tag
	`, map[string]any{"topics": lowercase(topics)})
	if err != nil {
		return nil, fmt.Errorf("failed to query regulation graph: %w", err)
	}

	var tags []string
	for result.Next(ctx) {
		if tag, ok := result.Record().Get("tag"); ok {
			if s, ok := tag.(string); ok {
				tags = append(tags, s)
			}
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read regulation tags: %w", err)
	}

	logger.Debug("Regulation tags resolved",
		zap.Int("topics", len(topics)),
		zap.Int("tags", len(tags)),
	)

	return tags, nil
}

func lowercase(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
