package worldio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/cubemap/pkg/ogz"
	"github.com/Faultbox/cubemap/pkg/ogz/objexport"
)

// ExportOBJ writes w, or the current world when w is nil, as base.obj and
// base.mtl. base may carry an extension, which is replaced.
func (m *Manager) ExportOBJ(base string, w *ogz.World, textures objexport.TextureSource) (*objexport.Mesh, error) {
	if w == nil {
		w = m.World()
	}
	if w == nil {
		return nil, errors.New("no world to export")
	}
	base = trimExt(base)
	objPath, mtlPath := base+".obj", base+".mtl"

	obj, err := os.Create(objPath)
	if err != nil {
		return nil, fmt.Errorf("could not write to %s: %w", objPath, err)
	}
	defer obj.Close()
	mtl, err := os.Create(mtlPath)
	if err != nil {
		return nil, fmt.Errorf("could not write to %s: %w", mtlPath, err)
	}
	defer mtl.Close()

	mesh, err := objexport.Export(w, textures, obj, mtl, filepath.Base(mtlPath))
	if err != nil {
		return nil, err
	}
	if err := obj.Close(); err != nil {
		return nil, err
	}
	if err := mtl.Close(); err != nil {
		return nil, err
	}
	m.log.Info("generated model",
		zap.String("path", objPath),
		zap.Int("vertices", len(mesh.Verts)),
		zap.Int("triangles", mesh.Triangles()),
		zap.Int("materials", len(mesh.Groups)))
	return mesh, nil
}

func trimExt(path string) string {
	return path[:len(path)-len(filepath.Ext(path))]
}
