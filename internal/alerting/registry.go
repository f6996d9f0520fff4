package alerting

// registryKey — пара (тип устройства, метка метрики)
type registryKey struct {
	deviceType string
	label      string
}

// Registry — статическая таблица чекеров, собираемая на старте.
// Никакого поиска классов в рантайме: что зарегистрировано, то и работает.
type Registry struct {
	checkers map[registryKey][]Checker
}

func NewRegistry(checkers ...Checker) *Registry {
	r := &Registry{
		checkers: make(map[registryKey][]Checker),
	}
	for _, c := range checkers {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c Checker) {
	key := registryKey{deviceType: c.DeviceType(), label: c.Label()}
	r.checkers[key] = append(r.checkers[key], c)
}

// Lookup возвращает чекеры для пары (тип устройства, метка); nil — пар нет
func (r *Registry) Lookup(deviceType, label string) []Checker {
	return r.checkers[registryKey{deviceType: deviceType, label: label}]
}

func (r *Registry) Len() int {
	total := 0
	for _, list := range r.checkers {
		total += len(list)
	}
	return total
}
