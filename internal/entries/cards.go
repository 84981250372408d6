package entries

import (
	"strings"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

// CardConfigRepository mirrors credit card settings ordered by card name.
type CardConfigRepository struct {
	*Repository[core.CardConfig, *core.CardConfig]
}

func NewCardConfigRepository(gw gateway.Gateway, logger *log.Logger, opts ...Option) *CardConfigRepository {
	return &CardConfigRepository{newRepository[core.CardConfig, *core.CardConfig](gw, logger, spec[core.CardConfig]{
		table: gateway.TableCardConfigs,
		order: func(q gateway.Query) gateway.Query { return q.OrderBy("card_name") },
		less: func(a, b *core.CardConfig) bool {
			return lessBy(cmpFold(a.CardName, b.CardName), strings.Compare(a.CardName, b.CardName))
		},
	}, buildOptions(opts))}
}

// ByName finds a card by exact name.
func (r *CardConfigRepository) ByName(name string) (core.CardConfig, bool) {
	found := r.Filter(func(c core.CardConfig) bool { return c.CardName == name })
	if len(found) == 0 {
		return core.CardConfig{}, false
	}
	return found[0], true
}
