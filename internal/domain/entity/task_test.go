package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sogos/pixelpipe/internal/domain/valueobject"
)

func TestNewInputLeaf(t *testing.T) {
	leaf := NewInputLeaf("/tmp/in1.jpg")

	assert.Equal(t, valueobject.StatusCompleted, leaf.Status)
	require.NotNil(t, leaf.Data)
	assert.Equal(t, "/tmp/in1.jpg", *leaf.Data)
	assert.Equal(t, valueobject.JobKindInput, leaf.Params.Kind)
	assert.Empty(t, leaf.Parents)
}

func TestTaskTreeValidate(t *testing.T) {
	valid := NewTaskTree(valueobject.NewOverlay(10, 10),
		NewTaskTree(valueobject.NewResize(512, 512),
			NewInputLeaf("in1.jpg"),
		),
		NewInputLeaf("in2.jpg"),
	)
	assert.NoError(t, valid.Validate())
}

func TestTaskTreeValidateRejectsWrongArity(t *testing.T) {
	// overlay with a single parent
	overlay := NewTaskTree(valueobject.NewOverlay(0, 0), NewInputLeaf("in.jpg"))
	assert.Error(t, overlay.Validate())

	// blur with no parent
	blur := NewTaskTree(valueobject.NewBlur(1))
	assert.Error(t, blur.Validate())

	// input leaf with a parent
	leaf := NewInputLeaf("in.jpg")
	leaf.Parents = []*TaskTree{NewInputLeaf("other.jpg")}
	assert.Error(t, leaf.Validate())
}

func TestTaskTreeValidateRejectsNestedInvalidNode(t *testing.T) {
	tree := NewTaskTree(valueobject.NewBlur(1),
		NewTaskTree(valueobject.NewResize(10, 10)), // missing its input
	)
	assert.Error(t, tree.Validate())
}

func TestTaskTreeSize(t *testing.T) {
	tree := NewTaskTree(valueobject.NewOverlay(0, 0),
		NewTaskTree(valueobject.NewResize(1, 1), NewInputLeaf("a")),
		NewInputLeaf("b"),
	)
	assert.Equal(t, 4, tree.Size())
}

func TestTaskHasData(t *testing.T) {
	var task Task
	assert.False(t, task.HasData())

	empty := ""
	task.Data = &empty
	assert.False(t, task.HasData())

	path := "x.bmp"
	task.Data = &path
	assert.True(t, task.HasData())
}
