package assets

import (
	"context"

	"github.com/spaghettifunk/ewbik/engine/assets/loaders"
)

type Loader interface {
	Load(ctx context.Context, url string) (*loaders.Rig, error)
}
