package vkframe

import (
	pkgerrors "github.com/pkg/errors"
)

// RenderTarget is the framebuffer and extent of one swap chain image.
type RenderTarget struct {
	Framebuffer Framebuffer
	Extent      Extent
}

// CommandRecorder records the per-frame draw into a slot command buffer.
type CommandRecorder struct {
	rec   Recorder
	clear ClearValue
}

func NewCommandRecorder(rec Recorder, clear ClearValue) *CommandRecorder {
	return &CommandRecorder{rec: rec, clear: clear}
}

// Record resets cmd and records one render pass into target: clear, full
// viewport and scissor, then the mesh draw when both pipeline and mesh are
// valid. Indexed meshes draw IndexCount indices, others VertexCount
// vertices. A mesh without vertices draws nothing but still clears.
func (r *CommandRecorder) Record(cmd CommandBuffer, imageIndex uint32, target RenderTarget, pipeline Pipeline, mesh Mesh) error {
	if cmd == 0 {
		return pkgerrors.Wrap(ErrRecordingFailed, "null command buffer")
	}
	if target.Framebuffer == 0 {
		return pkgerrors.Wrapf(ErrRecordingFailed, "image %d has no framebuffer", imageIndex)
	}
	if err := r.rec.BeginCommandBuffer(cmd); err != nil {
		return pkgerrors.Wrapf(Mark(err, ErrRecordingFailed), "begin image %d", imageIndex)
	}

	r.rec.BeginRenderPass(cmd, target.Framebuffer, target.Extent, r.clear)
	r.rec.SetViewport(cmd, target.Extent)
	if valid(pipeline) && valid(mesh) {
		r.rec.BindPipeline(cmd, pipeline)
		r.rec.BindMesh(cmd, mesh)
		switch vertices, indices := mesh.VertexCount(), mesh.IndexCount(); {
		case vertices == 0: // nothing to draw
		case indices > 0:
			r.rec.DrawIndexed(cmd, indices)
		default:
			r.rec.Draw(cmd, vertices)
		}
	}
	r.rec.EndRenderPass(cmd)

	if err := r.rec.EndCommandBuffer(cmd); err != nil {
		return pkgerrors.Wrapf(Mark(err, ErrRecordingFailed), "end image %d", imageIndex)
	}
	return nil
}

type validator interface {
	Valid() bool
}

func valid(v validator) bool {
	return v != nil && v.Valid()
}
