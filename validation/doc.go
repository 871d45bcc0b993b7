// Package validation validates flowkit configuration structs.
//
// Struct tag validation uses go-playground/validator; field names in
// messages follow the mapstructure tag so they match the config file keys.
//
//	type StageConfig struct {
//	    Concurrency int `mapstructure:"concurrency" validate:"gte=0"`
//	}
//	err := validation.Validate(cfg)
//
// Cross-field rules use the programmatic Validator:
//
//	v := validation.New()
//	v.Custom(cfg.QueueLimit == 0 || cfg.Concurrency > 1, "queue_limit", "requires concurrency > 1")
//	return v.Err()
package validation
