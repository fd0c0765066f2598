package block

// BlockBehavior описывает форму блока, важную для заполнения пространства
type BlockBehavior interface {
	ID() BlockID
	Name() string
	// FullCube true, если блок целиком занимает позицию и её нельзя заполнить
	FullCube() bool
	// Opaque true, если блок закрывает небо позициям под ним
	Opaque() bool
}

// Shape возвращает свойства блока. Незарегистрированный блок считается
// полным непрозрачным кубом.
func Shape(id BlockID) (fullCube, opaque bool) {
	if id == AirBlockID {
		return false, false
	}
	b, ok := Get(id)
	if !ok {
		return true, true
	}
	return b.FullCube(), b.Opaque()
}
