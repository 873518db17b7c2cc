package models

// RatesFile is the on-disk currency-rate configuration. Each rate converts
// an amount in the keyed currency to the target currency by multiplication.
type RatesFile struct {
	Target string            `yaml:"target" validate:"required,len=3,alpha,uppercase"`
	Rates  map[string]string `yaml:"rates" validate:"dive,keys,len=3,alpha,uppercase,endkeys,required,numeric"`
}
