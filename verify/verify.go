package verify

import "github.com/sbclang/sbcvm/module"

// Verify statically checks every function body in m, applying the abstract
// interpretation pass described in spec.md §4.3. It returns the first
// violation found; a nil result means the loader's interpreter can execute
// m without a type or stack-shape check ever failing at runtime.
func Verify(m *module.Module) error {
	for i, fn := range m.Functions {
		if err := verifyFunction(m, uint32(i), fn); err != nil {
			return err
		}
	}
	return nil
}
