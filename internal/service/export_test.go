package service

import "context"

// PollOnce выполняет одну попытку pull path (для тестов)
func (c *Coordinator) PollOnce(ctx context.Context, id string) bool {
	return c.pollOnce(ctx, id)
}
