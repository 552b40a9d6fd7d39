package sqlite

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/asakaida/authrus/internal/core/ports/driven"
)

// Rule represents a row in the authz_rules table.
type Rule struct {
	ID    uint   `gorm:"primaryKey"`
	PType string `gorm:"size:100;index"` // shape key: "p", "p2", "g", ...
	V0    string `gorm:"size:100"`
	V1    string `gorm:"size:100"`
	V2    string `gorm:"size:100"`
	V3    string `gorm:"size:100"`
	V4    string `gorm:"size:100"`
	V5    string `gorm:"size:100"`
}

// PolicyAdapterImpl implements driven.BatchPolicyAdapter on gorm/SQLite.
type PolicyAdapterImpl struct {
	db *gorm.DB
}

// NewPolicyAdapter creates a new PolicyAdapterImpl.
func NewPolicyAdapter(db *gorm.DB) (*PolicyAdapterImpl, error) {
	if err := db.AutoMigrate(&Rule{}); err != nil {
		return nil, fmt.Errorf("failed to migrate rules table: %w", err)
	}
	return &PolicyAdapterImpl{db: db}, nil
}

func toRecord(key string, rule []string) (Rule, error) {
	if len(rule) > 6 {
		return Rule{}, fmt.Errorf("rule has %d fields, at most 6 are persistable", len(rule))
	}
	rec := Rule{PType: key}
	fields := []*string{&rec.V0, &rec.V1, &rec.V2, &rec.V3, &rec.V4, &rec.V5}
	for i, v := range rule {
		*fields[i] = v
	}
	return rec, nil
}

func fromRecord(rec Rule) driven.PolicyRule {
	fields := []string{rec.V0, rec.V1, rec.V2, rec.V3, rec.V4, rec.V5}
	end := len(fields)
	for end > 0 && fields[end-1] == "" {
		end--
	}
	return driven.PolicyRule{Key: rec.PType, Rule: fields[:end]}
}

func (a *PolicyAdapterImpl) LoadPolicy() ([]driven.PolicyRule, error) {
	var records []Rule
	if result := a.db.Order("id").Find(&records); result.Error != nil {
		return nil, result.Error
	}
	rules := make([]driven.PolicyRule, 0, len(records))
	for _, rec := range records {
		rules = append(rules, fromRecord(rec))
	}
	return rules, nil
}

func (a *PolicyAdapterImpl) SavePolicy(rules []driven.PolicyRule) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		if result := tx.Where("1 = 1").Delete(&Rule{}); result.Error != nil {
			return result.Error
		}
		for _, r := range rules {
			rec, err := toRecord(r.Key, r.Rule)
			if err != nil {
				return err
			}
			if result := tx.Create(&rec); result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
}

// whereRule builds an explicit per-column condition for one rule. A struct
// condition would skip zero-value columns and match too broadly; empty
// fields must compare as empty, not as wildcards.
func whereRule(key string, rule []string) map[string]interface{} {
	cond := map[string]interface{}{"p_type": key}
	for i, col := range []string{"v0", "v1", "v2", "v3", "v4", "v5"} {
		if i < len(rule) {
			cond[col] = rule[i]
		} else {
			cond[col] = ""
		}
	}
	return cond
}

func (a *PolicyAdapterImpl) AddPolicy(key string, rule []string) error {
	rec, err := toRecord(key, rule)
	if err != nil {
		return err
	}
	// Check if the rule already exists
	var existing Rule
	if res := a.db.Where(whereRule(key, rule)).First(&existing); res.Error == nil {
		return nil
	}
	return a.db.Create(&rec).Error
}

func (a *PolicyAdapterImpl) RemovePolicy(key string, rule []string) error {
	if len(rule) > 6 {
		return fmt.Errorf("rule has %d fields, at most 6 are persistable", len(rule))
	}
	return a.db.Where(whereRule(key, rule)).Delete(&Rule{}).Error
}
